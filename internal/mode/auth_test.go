package mode

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // protocol-mandated hash, not used for security here
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rsaEncryptForTest(t *testing.T, kp *KeyPair, plaintext []byte) ([]byte, error) {
	t.Helper()
	return rsa.EncryptPKCS1v15(rand.Reader, &kp.private.PublicKey, plaintext)
}

// Known-answer vectors from the protocol documentation: sha1(name) run
// through the signed-hex digest must match the Notchian server's
// server-hash for those exact inputs.
func TestMinecraftHexDigest_KnownVectors(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, tc := range cases {
		sum := sha1.Sum([]byte(tc.input))
		got := minecraftHexDigest(sum[:])
		assert.Equal(t, tc.want, got, "input %q", tc.input)
	}
}

func TestGenerateKeyPair_ProducesUsableKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEmpty(t, kp.PublicKeyDER())
	assert.Len(t, kp.VerifyToken(), verifyTokenSize)
}

func TestVerifyEncryptedToken_RejectsMismatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	wrongToken := make([]byte, verifyTokenSize)
	copy(wrongToken, []byte{1, 2, 3, 4})
	encrypted, err := rsaEncryptForTest(t, kp, wrongToken)
	require.NoError(t, err)

	err = kp.VerifyEncryptedToken(encrypted)
	assert.ErrorIs(t, err, ErrVerifyTokenMismatch)
}

func TestVerifyEncryptedToken_AcceptsMatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	encrypted, err := rsaEncryptForTest(t, kp, kp.VerifyToken())
	require.NoError(t, err)

	assert.NoError(t, kp.VerifyEncryptedToken(encrypted))
}

func TestFormatUUID_InsertsDashes(t *testing.T) {
	out, err := FormatUUID("069a79f444e94726a5befca90e38aaf5")
	require.NoError(t, err)
	assert.Equal(t, "069a79f4-44e9-4726-a5be-fca90e38aaf5", out)
}

func TestFormatUUID_RejectsWrongLength(t *testing.T) {
	_, err := FormatUUID("tooshort")
	assert.Error(t, err)
}
