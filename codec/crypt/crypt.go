// Package crypt implements the pre-shared-key symmetric codec spec §4.M
// calls for: a PBKDF2-derived key feeds a selectable stream/block cipher
// (salsa20 or blowfish-CFB) that encrypts/decrypts each payload
// buffer.ByteBuf, mirroring the teacher's own key-derivation convention in
// std/crypt.go (PBKDF2 over a pre-shared passphrase) while operating at
// this module's pipeline layer instead of kcp-go's raw-packet BlockCrypt
// layer.
package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/salsa20"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
)

// salt is used deriving the shared session key, matching the teacher's own
// fixed PBKDF2 salt convention (SALT = "kcp-go" in server/main.go).
const salt = "eventloop"

// Method selects the cipher the codec applies once a key is derived.
type Method string

const (
	MethodSalsa20   Method = "salsa20"
	MethodBlowfish  Method = "blowfish"
)

// DeriveKey runs PBKDF2-SHA1 over passphrase, the same construction
// SelectBlockCrypt's callers use, sized for the chosen method.
func DeriveKey(method Method, passphrase string, iterations int) []byte {
	size := 32
	if method == MethodBlowfish {
		size = 16
	}
	return pbkdf2Key(passphrase, iterations, size)
}

func pbkdf2Key(passphrase string, iterations, size int) []byte {
	if iterations <= 0 {
		iterations = 4096
	}
	return pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, size, sha1.New)
}

// NewEncoder returns a handler that encrypts each outbound buffer.ByteBuf
// payload with method and key.
func NewEncoder(method Method, key []byte) (channel.Handler, error) {
	cryptFn, err := cipherFor(method, key)
	if err != nil {
		return nil, err
	}
	return &channel.MessageToMessageEncoder[buffer.ByteBuf]{
		Encode: func(ctx channel.Context, msg buffer.ByteBuf, out *[]interface{}) error {
			defer msg.Release()
			plain := msg.Bytes()
			nonce := make([]byte, cryptFn.nonceSize)
			if _, err := rand.Read(nonce); err != nil {
				return errors.Wrap(err, "crypt: nonce")
			}
			cipherText := make([]byte, len(plain))
			cryptFn.encrypt(cipherText, plain, nonce)

			buf := ctx.Allocator().Buffer(len(nonce)+len(cipherText), len(nonce)+len(cipherText))
			if err := buf.WriteBytes(nonce); err != nil {
				return errors.Wrap(err, "crypt: write nonce")
			}
			if err := buf.WriteBytes(cipherText); err != nil {
				return errors.Wrap(err, "crypt: write ciphertext")
			}
			*out = append(*out, buf)
			return nil
		},
	}, nil
}

// NewDecoder returns a handler that decrypts each inbound buffer.ByteBuf
// payload with method and key.
func NewDecoder(method Method, key []byte) (channel.Handler, error) {
	cryptFn, err := cipherFor(method, key)
	if err != nil {
		return nil, err
	}
	return &channel.MessageToMessageDecoder[buffer.ByteBuf]{
		Decode: func(ctx channel.Context, msg buffer.ByteBuf, out *[]interface{}) error {
			defer msg.Release()
			raw := msg.Bytes()
			if len(raw) < cryptFn.nonceSize {
				return errors.New("crypt: short frame")
			}
			nonce := raw[:cryptFn.nonceSize]
			cipherText := raw[cryptFn.nonceSize:]
			plain := make([]byte, len(cipherText))
			if err := cryptFn.decrypt(plain, cipherText, nonce); err != nil {
				return errors.Wrap(err, "crypt: decrypt")
			}
			buf := ctx.Allocator().Buffer(len(plain), len(plain))
			if err := buf.WriteBytes(plain); err != nil {
				return errors.Wrap(err, "crypt: write plaintext")
			}
			*out = append(*out, buf)
			return nil
		},
	}, nil
}

type cryptOps struct {
	nonceSize int
	encrypt   func(dst, src, nonce []byte)
	decrypt   func(dst, src, nonce []byte) error
}

func cipherFor(method Method, key []byte) (*cryptOps, error) {
	switch method {
	case MethodSalsa20:
		if len(key) < 32 {
			return nil, errors.New("crypt: salsa20 requires a 32-byte key")
		}
		var key32 [32]byte
		copy(key32[:], key)
		return &cryptOps{
			nonceSize: 8,
			encrypt: func(dst, src, nonce []byte) {
				var n8 [8]byte
				copy(n8[:], nonce)
				salsa20.XORKeyStream(dst, src, n8[:], &key32)
			},
			decrypt: func(dst, src, nonce []byte) error {
				var n8 [8]byte
				copy(n8[:], nonce)
				salsa20.XORKeyStream(dst, src, n8[:], &key32)
				return nil
			},
		}, nil
	case MethodBlowfish:
		block, err := blowfish.NewCipher(key)
		if err != nil {
			return nil, errors.Wrap(err, "crypt: blowfish key")
		}
		return &cryptOps{
			nonceSize: blowfish.BlockSize,
			encrypt: func(dst, src, nonce []byte) {
				stream := cipher.NewCFBEncrypter(block, nonce)
				stream.XORKeyStream(dst, src)
			},
			decrypt: func(dst, src, nonce []byte) error {
				stream := cipher.NewCFBDecrypter(block, nonce)
				stream.XORKeyStream(dst, src)
				return nil
			},
		}, nil
	default:
		return nil, errors.Errorf("crypt: unknown method %q", method)
	}
}
