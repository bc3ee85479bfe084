package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"plain", "19.99", 19.99},
		{"integer", "100", 100},
		{"padded", "  42.50 ", 42.5},
		{"empty", "", 0},
		{"malformed", "N/A", 0},
		{"currency symbol", "$10.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAmount(tt.input))
		})
	}
}

func TestStaticCredentialsFromJSON(t *testing.T) {
	creds, err := StaticCredentialsFromJSON(`[{"store_id":"store_1","domain":"shop.example.com","token":"tok_1"}]`)
	assert.NoError(t, err)

	cred, err := creds.Resolve(context.Background(), "store_1")
	assert.NoError(t, err)
	assert.Equal(t, "shop.example.com", cred.Domain)
	assert.Equal(t, "tok_1", cred.Token)
}

func TestStaticCredentialsFromJSON_Empty(t *testing.T) {
	creds, err := StaticCredentialsFromJSON("")
	assert.NoError(t, err)
	assert.Empty(t, creds)
}

func TestStaticCredentialsFromJSON_Malformed(t *testing.T) {
	_, err := StaticCredentialsFromJSON(`{"store_id":`)
	assert.Error(t, err)
}

func TestStaticCredentials_Resolve_Unknown(t *testing.T) {
	creds := StaticCredentials{}

	_, err := creds.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestStaticCredentials_Resolve_EmptyDomain(t *testing.T) {
	creds := StaticCredentials{
		"store_1": {StoreID: "store_1", Token: "tok_1"},
	}

	_, err := creds.Resolve(context.Background(), "store_1")
	assert.ErrorIs(t, err, ErrNoCredential, "a credential without a domain is unusable")
}
