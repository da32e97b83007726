package attacks

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lth/md5crack/internal/md5block"
)

const maxLineSize = 1024 * 1024

// WordlistGenerator streams the lines of filename. Lines longer than
// md5block.MaxMsgSize cannot be hashed in one lane and are skipped with a
// warning.
func WordlistGenerator(ctx context.Context, filename string, log logrus.FieldLogger) (<-chan string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open wordlist")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	ch := make(chan string, 1000)

	go func() {
		defer close(ch)
		defer f.Close()

		err := scanLines(f, log.WithField("wordlist", filename), func(word string) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- word:
				return true
			}
		})
		if err != nil {
			log.WithError(err).WithField("wordlist", filename).Error("wordlist read aborted")
		}
	}()

	return ch, nil
}

// LoadWordlist reads the whole of path into memory, one candidate per line.
func LoadWordlist(path string, log logrus.FieldLogger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open wordlist")
	}
	defer f.Close()
	if log == nil {
		log = logrus.StandardLogger()
	}

	var words []string
	err = scanLines(f, log.WithField("wordlist", path), func(word string) bool {
		words = append(words, word)
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read wordlist %s", path)
	}
	return words, nil
}

func scanLines(f *os.File, log logrus.FieldLogger, emit func(string) bool) error {
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		word := strings.TrimSuffix(scanner.Text(), "\r")
		if len(word) > md5block.MaxMsgSize {
			log.WithFields(logrus.Fields{
				"line":   line,
				"length": len(word),
			}).Warn("skipping candidate longer than max message size")
			continue
		}
		if !emit(word) {
			return nil
		}
	}
	return scanner.Err()
}

func SliceGenerator(ctx context.Context, passwords []string) <-chan string {
	ch := make(chan string, 100)

	go func() {
		defer close(ch)
		for _, p := range passwords {
			select {
			case <-ctx.Done():
				return
			case ch <- p:
			}
		}
	}()

	return ch
}
