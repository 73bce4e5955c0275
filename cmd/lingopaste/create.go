package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"lingopaste/pkg/domain"
	"lingopaste/svc/util"
)

var (
	toneFlag   string
	fileFlag   string
	formatFlag string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a paste from stdin or a file",
	Example: `  echo "Hello, world" | lingopaste create
  lingopaste create -t professional -F notes.txt`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c, err := loadClientCfg()
		if err != nil {
			exitErr("config", err)
		}
		tone, err := domain.ParseTone(toneFlag)
		if err != nil {
			exitErr("tone", err)
		}
		content, err := readContent(cmd.InOrStdin(), fileFlag)
		if err != nil {
			exitErr("read content", err)
		}
		pc, _, err := newClients(c)
		if err != nil {
			exitErr("client", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.Client.RequestTimeout)
		defer cancel()
		res, err := pc.Create(ctx, content, tone)
		if err != nil {
			util.Debug().Err(err).Str("content", util.RedactPasteContent(content)).Msg("create failed")
			exitErr("create", err)
		}
		if err := printCreated(cmd.OutOrStdout(), res.PasteID, res.OriginalLanguage, formatFlag); err != nil {
			exitErr("output", err)
		}
	},
}

func init() {
	createCmd.Flags().StringVarP(&toneFlag, "tone", "t", "default", "Tone: default, professional, friendly or brusque")
	createCmd.Flags().StringVarP(&fileFlag, "file", "F", "", "Read content from file instead of stdin")
	createCmd.Flags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}
func readContent(stdin io.Reader, path string) (string, error) {
	var r io.Reader = stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(io.LimitReader(r, 8<<20))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("no content")
	}
	return string(b), nil
}
func printCreated(w io.Writer, id, lang, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]string{
			"paste_id":          id,
			"original_language": lang,
		})
	}
	_, err := fmt.Fprintf(w, "%s\t%s (%s)\n", id, lang, domain.LanguageName(lang))
	return err
}
