package local

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Form field names understood by the local upload handler
const (
	FieldKey         = "key"
	FieldContentType = "Content-Type"
	FieldPolicy      = "policy"
	FieldSignature   = "x-amz-signature"
	FieldFile        = "file"
)

// policyDocument mirrors the shape of an S3 POST policy
type policyDocument struct {
	Expiration string            `json:"expiration"`
	Conditions []json.RawMessage `json:"conditions"`
}

// Policy is the decoded, validated form of a policy document
type Policy struct {
	Expiration        time.Time
	Bucket            string
	Key               string
	MinSize           int64
	MaxSize           int64
	ContentTypePrefix string
}

func (p Policy) encode() (string, error) {
	conditions := []interface{}{
		map[string]string{"bucket": p.Bucket},
		map[string]string{"key": p.Key},
		[]interface{}{"content-length-range", p.MinSize, p.MaxSize},
		[]interface{}{"starts-with", "$Content-Type", p.ContentTypePrefix},
	}
	raw := make([]json.RawMessage, 0, len(conditions))
	for _, c := range conditions {
		b, err := json.Marshal(c)
		if err != nil {
			return "", err
		}
		raw = append(raw, b)
	}
	doc, err := json.Marshal(policyDocument{
		Expiration: p.Expiration.UTC().Format(time.RFC3339),
		Conditions: raw,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(doc), nil
}

// decodePolicy parses a base64 policy document produced by encode
func decodePolicy(encoded string) (*Policy, error) {
	doc, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingPolicy, err)
	}
	var pd policyDocument
	if err := json.Unmarshal(doc, &pd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingPolicy, err)
	}
	exp, err := time.Parse(time.RFC3339, pd.Expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expiration: %v", ErrMissingPolicy, err)
	}

	p := &Policy{Expiration: exp}
	for _, raw := range pd.Conditions {
		var exact map[string]string
		if err := json.Unmarshal(raw, &exact); err == nil {
			if v, ok := exact["bucket"]; ok {
				p.Bucket = v
			}
			if v, ok := exact["key"]; ok {
				p.Key = v
			}
			continue
		}
		var tuple []interface{}
		if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) != 3 {
			return nil, fmt.Errorf("%w: malformed condition %s", ErrMissingPolicy, raw)
		}
		switch tuple[0] {
		case "content-length-range":
			lo, _ := tuple[1].(float64)
			hi, _ := tuple[2].(float64)
			p.MinSize, p.MaxSize = int64(lo), int64(hi)
		case "starts-with":
			if field, _ := tuple[1].(string); field == "$Content-Type" {
				p.ContentTypePrefix, _ = tuple[2].(string)
			}
		}
	}
	return p, nil
}

// signer computes HMAC-SHA256 signatures over encoded policies
type signer struct {
	secretKey []byte
}

func (s signer) sign(encodedPolicy string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(encodedPolicy))
	return hex.EncodeToString(h.Sum(nil))
}

// verify checks the signature, the expiration and the per-field conditions
func (s signer) verify(fields map[string]string, now time.Time) (*Policy, error) {
	encoded, signature := fields[FieldPolicy], fields[FieldSignature]
	if encoded == "" || signature == "" {
		return nil, ErrMissingPolicy
	}

	if !hmac.Equal([]byte(signature), []byte(s.sign(encoded))) {
		return nil, ErrInvalidSignature
	}

	p, err := decodePolicy(encoded)
	if err != nil {
		return nil, err
	}
	if now.After(p.Expiration) {
		return nil, ErrExpired
	}
	if fields[FieldKey] != p.Key {
		return nil, fmt.Errorf("%w: key", ErrConditionFailed)
	}
	if !strings.HasPrefix(fields[FieldContentType], p.ContentTypePrefix) {
		return nil, fmt.Errorf("%w: Content-Type", ErrConditionFailed)
	}
	return p, nil
}
