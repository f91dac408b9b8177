package r2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

func testConfig() Config {
	return Config{
		AccountID:       "acct123",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Bucket:          "uploads",
	}
}

func policyRequest(key string) simpleupload.PolicyRequest {
	return simpleupload.PolicyRequest{
		Bucket:      "uploads",
		Key:         key,
		ContentType: "image/png",
		MinSize:     0,
		MaxSize:     simpleupload.MaxUploadSize,
		Expires:     simpleupload.PolicyTTL,
	}
}

func TestObjectURL(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, "uploads", b.Bucket())
	assert.Equal(t, "https://uploads.acct123.r2.cloudflarestorage.com/1-a.png", b.ObjectURL("1-a.png"))

	cfg := testConfig()
	cfg.Endpoint = "http://localhost:9000/"
	cfg.UsePathStyle = true
	b, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/uploads/1-a.png", b.ObjectURL("1-a.png"))
}

func TestConfigEndpoint(t *testing.T) {
	assert.Equal(t, "https://acct123.r2.cloudflarestorage.com", testConfig().endpoint())
	cfg := testConfig()
	cfg.Endpoint = "http://minio:9000"
	assert.Equal(t, "http://minio:9000", cfg.endpoint())
}

func TestSignPolicy(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)

	signed, err := b.SignPolicy(context.Background(), policyRequest("1700000000000-photo.png"))
	require.NoError(t, err)

	assert.Contains(t, signed.URL, "acct123.r2.cloudflarestorage.com")
	assert.Equal(t, "image/png", signed.Fields["Content-Type"])

	var encoded string
	for k, v := range signed.Fields {
		if strings.EqualFold(k, "policy") {
			encoded = v
		}
	}
	require.NotEmpty(t, encoded, "policy field missing from %v", signed.Fields)

	doc, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var policy struct {
		Expiration string            `json:"expiration"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	require.NoError(t, json.Unmarshal(doc, &policy))

	expiration, err := time.Parse(time.RFC3339, policy.Expiration)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(simpleupload.PolicyTTL), expiration, 10*time.Second)

	var tuples [][]interface{}
	for _, raw := range policy.Conditions {
		var tuple []interface{}
		if json.Unmarshal(raw, &tuple) == nil {
			tuples = append(tuples, tuple)
		}
	}
	assert.Contains(t, tuples, []interface{}{"content-length-range", float64(0), float64(10485760)})
	assert.Contains(t, tuples, []interface{}{"starts-with", "$Content-Type", ""})
}

func TestSignPolicy_MissingSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing account", func(c *Config) { c.AccountID = "" }, ErrMissingAccount},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, ErrMissingBucket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			// construction succeeds, the failure surfaces at signing time
			b, err := New(cfg)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err = b.SignPolicy(ctx, policyRequest("k"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDescribe(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidAccessKeyId", Message: "The access key is invalid"}
	err := describe(apiErr)
	assert.Contains(t, err.Error(), "InvalidAccessKeyId")
	assert.Contains(t, err.Error(), "The access key is invalid")
	assert.True(t, errors.Is(err, apiErr))

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, "r2: dial tcp: timeout", describe(plain).Error())
}
