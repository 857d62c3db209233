// Package akenc implements C5, the Always Encrypted column-encryption
// engine: the CEK table, provider-based CEK resolution, and the
// AEAD_AES_256_CBC_HMAC_SHA256 encrypt/decrypt pipeline (spec.md S4.5).
package akenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"github.com/tdsgo/tds/internal/errs"
)

// EncryptionType selects deterministic or randomized IV derivation
// (spec.md S4.5).
type EncryptionType uint8

const (
	Plaintext EncryptionType = iota
	Deterministic
	Randomized
)

const (
	aeadVersionByte  byte = 0x01
	cekKeySizeBytes       = 32
	blockSize             = aes.BlockSize // 16
	macSize               = sha256.Size   // 32
)

// Salts are the fixed HMAC labels spec.md S4.5 names for key derivation;
// AEAD_AES_256_CBC_HMAC_SHA256 is not implemented by any library in the
// retrieval pack, so this is built directly from crypto/aes+cipher+hmac+
// sha256 per the algorithm's literal specification.
var (
	saltEncKey = []byte("Microsoft SQL Server cell encryption key")
	saltMacKey = []byte("Microsoft SQL Server cell MAC key")
	saltIVKey  = []byte("Microsoft SQL Server cell IV key")
)

func deriveKey(cek, salt []byte) []byte {
	mac := hmac.New(sha256.New, cek)
	mac.Write(salt)
	return mac.Sum(nil)[:cekKeySizeBytes]
}

// Encrypt implements spec.md S4.5's AEAD_AES_256_CBC_HMAC_SHA256 encryption:
// derive K_enc/K_mac/K_iv from the 32-byte CEK, choose the IV per mode,
// AES-256-CBC the PKCS7-padded plaintext, then MAC
// (version_byte || IV || C || algorithm_version_byte) and lay the blob out
// as version_byte || T || IV || C.
func Encrypt(plaintext, cek []byte, mode EncryptionType) ([]byte, error) {
	if len(cek) != cekKeySizeBytes {
		return nil, errs.Newf(errs.KindInvalidCipherMetadata, "akenc.Encrypt", "CEK must be %d bytes, got %d", cekKeySizeBytes, len(cek))
	}
	if mode == Plaintext {
		return nil, errs.New(errs.KindInvalidCipherMetadata, "akenc.Encrypt", "cannot AEAD-encrypt a PLAINTEXT column")
	}

	kEnc := deriveKey(cek, saltEncKey)
	kMac := deriveKey(cek, saltMacKey)

	padded := pkcs7Pad(plaintext, blockSize)

	var iv []byte
	if mode == Deterministic {
		kIV := deriveKey(cek, saltIVKey)
		mac := hmac.New(sha256.New, kIV)
		mac.Write(plaintext)
		iv = mac.Sum(nil)[:blockSize]
	} else {
		iv = make([]byte, blockSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, errs.Wrap(err, errs.KindInternal, "akenc.Encrypt", "generating random IV")
		}
	}

	block, err := aes.NewCipher(kEnc)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "akenc.Encrypt", "constructing AES cipher")
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	tag := computeTag(kMac, iv, ciphertext)

	out := make([]byte, 0, 1+len(tag)+len(iv)+len(ciphertext))
	out = append(out, aeadVersionByte)
	out = append(out, tag...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt is Encrypt's inverse. MAC verification is constant-time and
// precedes decryption; a mismatch fails DecryptionFailed without revealing
// which byte differed (spec.md S4.5).
func Decrypt(blob, cek []byte) ([]byte, error) {
	if len(cek) != cekKeySizeBytes {
		return nil, errs.Newf(errs.KindInvalidCipherMetadata, "akenc.Decrypt", "CEK must be %d bytes, got %d", cekKeySizeBytes, len(cek))
	}
	minLen := 1 + blockSize + macSize
	if len(blob) < minLen || (len(blob)-1-blockSize-macSize)%blockSize != 0 {
		return nil, errs.New(errs.KindInvalidCipherMetadata, "akenc.Decrypt", "ciphertext blob has an invalid length")
	}
	if blob[0] != aeadVersionByte {
		return nil, errs.Newf(errs.KindInvalidCipherMetadata, "akenc.Decrypt", "unsupported AEAD version byte 0x%02X", blob[0])
	}

	tag := blob[1 : 1+macSize]
	iv := blob[1+macSize : 1+macSize+blockSize]
	ciphertext := blob[1+macSize+blockSize:]

	kEnc := deriveKey(cek, saltEncKey)
	kMac := deriveKey(cek, saltMacKey)

	expected := computeTag(kMac, iv, ciphertext)
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, errs.New(errs.KindDecryptionFailed, "akenc.Decrypt", "MAC verification failed")
	}

	block, err := aes.NewCipher(kEnc)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "akenc.Decrypt", "constructing AES cipher")
	}
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, errs.New(errs.KindDecryptionFailed, "akenc.Decrypt", "ciphertext is not block-aligned")
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, blockSize)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindDecryptionFailed, "akenc.Decrypt", "invalid padding")
	}
	return plaintext, nil
}

// computeTag builds T = HMAC_SHA256(K_mac, version_byte || IV || C ||
// algorithm_version_byte)[0..32]; the algorithm-version trailer is the
// same fixed byte as the leading version byte for this single algorithm.
func computeTag(kMac, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, kMac)
	mac.Write([]byte{aeadVersionByte})
	mac.Write(iv)
	mac.Write(ciphertext)
	mac.Write([]byte{aeadVersionByte})
	return mac.Sum(nil)[:macSize]
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errs.New(errs.KindInternal, "akenc.pkcs7Unpad", "padded data is not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > size || padLen > len(data) {
		return nil, errs.New(errs.KindInternal, "akenc.pkcs7Unpad", "invalid PKCS7 padding length")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errs.New(errs.KindInternal, "akenc.pkcs7Unpad", "invalid PKCS7 padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
