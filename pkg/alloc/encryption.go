package alloc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// EncryptionKeySize is the required key length for the AES-CTR+HMAC page
// encryption hook.
const EncryptionKeySize = 32

// hmacSize is the trailing authentication tag size appended to every
// encrypted page.
const hmacSize = sha256.Size

// decryptRead reads len(dst) plaintext bytes from the backend at off. When
// no encryption key is configured it is a plain pass-through read; no
// example repo in the pack carries a dedicated AES-CTR+HMAC page-envelope
// library, so this hook is built directly on stdlib crypto/aes+cipher+hmac
// (algorithm choice recorded in DESIGN.md).
func (a *Allocator) decryptRead(dst []byte, off int64) (int, error) {
	if a.encryptKey == nil {
		return a.store.ReadAt(dst, off)
	}
	envelope := make([]byte, len(dst)+hmacSize)
	n, err := a.store.ReadAt(envelope, off)
	if err != nil && n < len(envelope) {
		return 0, err
	}
	ciphertext := envelope[:len(dst)]
	tag := envelope[len(dst):]
	if err := verifyTag(a.encryptKey, ciphertext, tag); err != nil {
		return 0, err
	}
	plain, err := ctrTransform(a.encryptKey, off, ciphertext)
	if err != nil {
		return 0, err
	}
	copy(dst, plain)
	return len(dst), nil
}

// encryptWrite writes data, optionally through the AES-CTR+HMAC envelope.
func (a *Allocator) encryptWrite(data []byte, off int64) error {
	if a.encryptKey == nil {
		_, err := a.store.WriteAt(data, off)
		return err
	}
	ciphertext, err := ctrTransform(a.encryptKey, off, data)
	if err != nil {
		return err
	}
	tag := computeTag(a.encryptKey, ciphertext)
	envelope := append(ciphertext, tag...)
	_, err = a.store.WriteAt(envelope, off)
	return err
}

// ctrTransform is used for both directions: AES-CTR is its own inverse
// given the same keystream, so encryption and decryption share this
// helper. The IV is derived from the page offset so identical plaintexts
// at different offsets never reuse a keystream.
func ctrTransform(key []byte, offset int64, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := ivForOffset(offset)
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

func ivForOffset(offset int64) []byte {
	iv := make([]byte, aes.BlockSize)
	for i := 0; i < 8; i++ {
		iv[aes.BlockSize-1-i] = byte(offset >> (8 * i))
	}
	return iv
}

func computeTag(key, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func verifyTag(key, ciphertext, tag []byte) error {
	if !hmac.Equal(computeTag(key, ciphertext), tag) {
		return fmt.Errorf("page authentication failed")
	}
	return nil
}
