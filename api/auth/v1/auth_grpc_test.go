package authv1

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestServiceDescriptors(t *testing.T) {
	for _, desc := range []grpc.ServiceDesc{AuthService_ServiceDesc, DevService_ServiceDesc} {
		t.Run(desc.ServiceName, func(t *testing.T) {
			meta, ok := desc.Metadata.(string)
			require.True(t, ok)
			_, err := os.Stat(filepath.Base(meta))
			assert.NoError(t, err, "descriptor metadata names a file in this package")
			assert.NotEmpty(t, desc.Methods)
		})
	}
	assert.Len(t, AuthService_ServiceDesc.Methods, 12)
	assert.Equal(t, "GetOTP", DevService_ServiceDesc.Methods[0].MethodName)
}
