// Package simpleupload issues short-lived presigned POST policies that let an
// authenticated browser or client upload a single file directly to an
// S3-compatible bucket (Cloudflare R2 in production) without the server ever
// touching the file bytes.
//
// The Issuer turns a (fileName, contentType) pair into an UploadPolicy by
// asking a PolicySigner for a signed form. Signers live under storage/
// (r2 for the real bucket, local for development). HTTP handlers live under
// api/, the two-step client helper under client/ and startup validation of
// deployment settings under deployment/.
//
// Server-side:
//
//	signer, _ := r2.New(r2.Config{AccountID: "...", Bucket: "uploads", ...})
//	issuer := simpleupload.NewIssuer(signer, simpleupload.WithPublicBaseURL("https://cdn.example.com"))
//	policy, err := issuer.Issue(ctx, "photo.png", "image/png")
//
// Client-side:
//
//	c := client.New(client.WithBaseURL("https://app.example.com"))
//	res, err := c.Upload(ctx, client.File{Name: "photo.png", ContentType: "image/png", Body: f})
package simpleupload
