package testutil

import (
	"testing"
)

// VerifyTranscriptInS3 checks that an object exists in S3 and returns its content
func VerifyTranscriptInS3(t *testing.T, env *TestEnvironment, s3Key string) []byte {
	t.Helper()

	content, err := env.Storage.Download(env.Ctx, s3Key)
	if err != nil {
		t.Fatalf("failed to download object from S3: %v", err)
	}

	return content
}
