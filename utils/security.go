package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/crypto/blake2b"
)

func GenerateToken(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// Digest maps a browser key to the name it is stored under in Redis, so a
// leaked keyspace does not hand out live cookies.
func Digest(browserKey string) string {
	sum := blake2b.Sum256([]byte(browserKey))
	return hex.EncodeToString(sum[:])
}

// SendMagicLinkEmail mails a generated login link through SendGrid.
func SendMagicLinkEmail(apiKey, from, email, link string) error {
	sender := mail.NewEmail("Docs Access", from)
	subject := "Your documentation login link"
	to := mail.NewEmail("", email)

	plainTextContent := fmt.Sprintf("Follow this link to sign in to the documentation: %s", link)
	htmlContent := fmt.Sprintf("<p>Follow this link to sign in to the documentation:</p><p><a href=\"%s\">Log in</a></p>", link)

	message := mail.NewSingleEmail(sender, subject, to, plainTextContent, htmlContent)
	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(message)
	if err != nil {
		log.Println("Error sending email:", err)
		return err
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", response.StatusCode, response.Body)
	}

	log.Println("magic link email sent to: ", email)
	return nil
}
