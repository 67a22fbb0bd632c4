package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientRPCURLCarriesAPIKey(t *testing.T) {
	plain := NewClient("https://rpc.example.org")
	assert.Equal(t, "https://rpc.example.org", plain.rpcURL())

	keyed := NewClient("https://rpc.example.org", WithAPIKey("secret key"))
	assert.Equal(t, "https://rpc.example.org?api-key=secret+key", keyed.rpcURL())

	// An endpoint that already carries a query string gets appended to.
	chained := NewClient("https://rpc.example.org?cluster=mainnet", WithAPIKey("k1"))
	assert.Equal(t, "https://rpc.example.org?cluster=mainnet&api-key=k1", chained.rpcURL())
}
