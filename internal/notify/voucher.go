package notify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// Voucher is the contact-exchange payload a customer presents at an offline
// meeting. It is encrypted before being rendered, so the QR itself leaks
// nothing if forwarded.
type Voucher struct {
	BookingID  string    `json:"booking_id"`
	CustomerID string    `json:"customer_id"`
	TalentID   string    `json:"talent_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

type VoucherGenerator struct {
	secret []byte
}

func NewVoucherGenerator(secret string) *VoucherGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &VoucherGenerator{secret: hashed[:]}
}

// GenerateQR returns a PNG QR code of the AES-encrypted voucher, suitable
// for embedding in the booking-confirmed notification template.
func (g *VoucherGenerator) GenerateQR(v Voucher) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
