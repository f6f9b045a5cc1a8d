package cipher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, k1, KeySize*2)
	assert.True(t, isHex(k1))
	assert.NotEqual(t, k1, k2)
}

func TestRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeGCM, ModeCTR} {
		t.Run(string(mode), func(t *testing.T) {
			c := New(mode)
			key, err := GenerateKey()
			require.NoError(t, err)

			for _, p := range []string{"", "Secret1!", "pässwörd ✓", strings.Repeat("x", 1024)} {
				payload, err := c.Encrypt(p, key)
				require.NoError(t, err)
				assert.True(t, IsValidEncryptedFormat(payload), payload)

				got, err := c.Decrypt(payload, key)
				require.NoError(t, err)
				assert.Equal(t, p, got)
			}
		})
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	for _, mode := range []Mode{ModeGCM, ModeCTR} {
		c := New(mode)
		key, err := GenerateKey()
		require.NoError(t, err)

		a, err := c.Encrypt("Secret1!", key)
		require.NoError(t, err)
		b, err := c.Encrypt("Secret1!", key)
		require.NoError(t, err)

		assert.NotEqual(t, a, b, "mode %s", mode)
	}
}

func TestEncryptRejectsMalformedKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"Empty", ""},
		{"NotHex", strings.Repeat("zz", KeySize)},
		{"TooShort", strings.Repeat("ab", 16)},
		{"TooLong", strings.Repeat("ab", 33)},
		{"OddLength", strings.Repeat("a", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encrypt("Secret1!", tt.key)
			assert.ErrorIs(t, err, ErrEncryption)
		})
	}
}

func TestDecryptWithDifferentKeyFails(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	payload, err := Encrypt("Secret1!", key)
	require.NoError(t, err)

	got, err := Decrypt(payload, key)
	require.NoError(t, err)
	assert.Equal(t, "Secret1!", got)

	_, err = Decrypt(payload, other)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptDetectsTamperingInGCM(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	payload, err := Encrypt("Secret1!", key)
	require.NoError(t, err)

	ivHex, dataHex, _ := strings.Cut(payload, ":")
	flipped := []byte(dataHex)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}

	_, err = Decrypt(ivHex+":"+string(flipped), key)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsMalformedPayload(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	iv := strings.Repeat("0", IVSize*2)

	tests := []struct {
		name    string
		payload string
	}{
		{"Empty", ""},
		{"NoDelimiter", "nodelimiter"},
		{"TwoDelimiters", iv + ":00:00"},
		{"NonHexIV", strings.Repeat("g", IVSize*2) + ":00"},
		{"TruncatedIV", iv[:30] + ":00"},
		{"NonHexCipher", iv + ":zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.payload, key)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestDecryptErrorDoesNotLeakCause(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, formatErr := Decrypt("a:b:c", key)
	_, keyErr := Decrypt(strings.Repeat("0", 32)+":00", "bad")

	require.Error(t, formatErr)
	require.Error(t, keyErr)
	assert.Equal(t, formatErr.Error(), keyErr.Error())
}

func TestIsValidEncryptedFormat(t *testing.T) {
	iv := strings.Repeat("ab", IVSize)

	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"Empty", "", false},
		{"NoDelimiter", "nodelimiter", false},
		{"ThreeParts", "a:b:c", false},
		{"ShortIV", strings.Repeat("a", 30) + ":00", false},
		{"LongIV", strings.Repeat("a", 34) + ":00", false},
		{"NonHexIV", strings.Repeat("x", 32) + ":00", false},
		{"NonHexCipher", iv + ":xyz0", false},
		{"OddCipher", iv + ":abc", false},
		{"Valid", iv + ":deadbeef", true},
		{"UpperHex", strings.ToUpper(iv) + ":DEADBEEF", true},
		{"EmptyCipher", iv + ":", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEncryptedFormat(tt.payload))
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeGCM, m)

	m, err = ParseMode(" CTR ")
	require.NoError(t, err)
	assert.Equal(t, ModeCTR, m)

	_, err = ParseMode("cbc")
	assert.Error(t, err)
}

func TestCTRPayloadRequiresCTRMode(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	payload, err := New(ModeCTR).Encrypt("Secret1!", key)
	require.NoError(t, err)

	_, err = New(ModeGCM).Decrypt(payload, key)
	assert.ErrorIs(t, err, ErrDecryption)

	plain, err := New(ModeCTR).Decrypt(payload, key)
	require.NoError(t, err)
	assert.Equal(t, "Secret1!", plain)
}
