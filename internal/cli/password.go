package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/vbp1/tablerepl/internal/replicate"
)

// PromptPassword returns a reader that asks for the password on prompt and
// reads it from in without echo. A non-terminal input is read as one line.
func PromptPassword(in *os.File, prompt io.Writer) replicate.PasswordFunc {
	return func() (string, error) {
		fmt.Fprint(prompt, "Password: ")
		var (
			pw  string
			err error
		)
		if term.IsTerminal(int(in.Fd())) {
			var b []byte
			b, err = term.ReadPassword(int(in.Fd()))
			fmt.Fprintln(prompt)
			pw = string(b)
		} else {
			pw, err = bufio.NewReader(in).ReadString('\n')
			if errors.Is(err, io.EOF) && pw != "" {
				err = nil
			}
			pw = strings.TrimRight(pw, "\r\n")
		}
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if pw == "" {
			return "", errors.New("empty password entered")
		}
		return pw, nil
	}
}
