package lib

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/emersion/go-imap"
)

const charset = "abcdefghijklmnopqrstuvwxyz " +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 " +
	",./;'\\ \" []{}<>?:|!@$%^&*()_+-= " +
	"\r\n\r\n\r\n "

const template = "From: %s\r\n" +
	"To: %s\r\n" +
	"Subject: %s\r\n" +
	"Date: %s\r\n" +
	"Message-ID: <%d@localhost/>\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n%s"

var seededRand = rand.New(rand.NewSource(time.Now().UnixMilli()))

var generatedFlags = []string{
	imap.SeenFlag,
	imap.AnsweredFlag,
	imap.FlaggedFlag,
	imap.DraftFlag,
	"$Important",
}

func stringWithCharset(length int, charset string) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// GenerateEmail returns a random text message of up to maxSize bytes of body
func GenerateEmail(from, to, subject string, id uint32, maxSize int) []byte {
	length := seededRand.Intn(maxSize)
	date := GenerateDateFrom(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
	msg := fmt.Sprintf(template, from, to, subject, date.Format(time.RFC1123Z), id, stringWithCharset(length, charset))
	return []byte(msg)
}

// GenerateDateFrom returns a random date between from and now
func GenerateDateFrom(from time.Time) time.Time {
	delta := time.Since(from)
	if delta <= 1 {
		return from
	}
	return from.Add(time.Duration(seededRand.Int63n(int64(delta)-1) + 1))
}

// GenerateFlags returns between 0 and max-1 distinct flags
func GenerateFlags(max int) []string {
	count := seededRand.Intn(max)
	if count > len(generatedFlags) {
		count = len(generatedFlags)
	}
	flags := make([]string, 0, count)
	for _, index := range seededRand.Perm(len(generatedFlags))[:count] {
		flags = append(flags, generatedFlags[index])
	}
	return flags
}
