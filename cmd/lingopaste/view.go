package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"lingopaste/pkg/domain"
	"lingopaste/svc/session"
)

var viewLang string

var viewCmd = &cobra.Command{
	Use:   "view <paste-id>",
	Short: "Read a paste interactively, switching languages on demand",
	Long: `Loads a paste and reads commands from stdin:

  lang <code>   show the paste in another language (fetched on first use)
  mode <m>      translation, original or side-by-side
  langs         list languages
  show          print the current view
  quit          leave`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadClientCfg()
		if err != nil {
			return err
		}
		pref := c.Client.PreferredLanguage
		if viewLang != "" {
			pref = viewLang
		}
		pc, tc, err := newClients(c)
		if err != nil {
			return err
		}
		ctrl := session.NewController(pc, tc,
			session.WithPreferredLanguage(pref),
			session.WithTranslateTimeout(c.Client.TranslateTimeout),
		)
		defer ctrl.Leave()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return runView(ctx, ctrl, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	viewCmd.Flags().StringVarP(&viewLang, "lang", "l", "", "Preferred language (default: $PREFERRED_LANGUAGE or $LANG)")
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// runView enters the paste and runs the command loop until quit or EOF.
// Progress from background translations is reported as it happens.
func runView(ctx context.Context, ctrl *session.Controller, id string, in io.Reader, out io.Writer) error {
	w := &syncWriter{w: out}
	updates, unsubscribe := ctrl.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportProgress(w, updates)
	}()
	defer func() {
		unsubscribe()
		<-done
	}()

	if err := ctrl.Enter(ctx, id); err != nil {
		return err
	}
	render(w, ctrl.Snapshot())

	sc := bufio.NewScanner(in)
	fmt.Fprint(w, "> ")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			fmt.Fprint(w, "> ")
			continue
		}
		switch fields[0] {
		case "q", "quit", "exit":
			return nil
		case "l", "lang":
			if len(fields) < 2 {
				fmt.Fprintln(w, "usage: lang <code>")
				break
			}
			err := ctrl.SelectLanguage(ctx, fields[1])
			if k := domain.KindOf(err); k == domain.KindInvalid {
				fmt.Fprintf(w, "invalid language %q\n", fields[1])
				break
			} else if k == domain.KindClosed {
				return err
			}
			render(w, ctrl.Snapshot())
		case "m", "mode":
			if len(fields) < 2 {
				fmt.Fprintln(w, "usage: mode translation|original|side-by-side")
				break
			}
			m, err := domain.ParseViewMode(fields[1])
			if err != nil {
				fmt.Fprintln(w, errMsg(err))
				break
			}
			if err := ctrl.SetMode(m); err != nil {
				return err
			}
			render(w, ctrl.Snapshot())
		case "langs":
			listLanguages(w, ctrl.Snapshot())
		case "show":
			render(w, ctrl.Snapshot())
		case "help", "?":
			fmt.Fprintln(w, "commands: lang <code>, mode <m>, langs, show, quit")
		default:
			fmt.Fprintf(w, "unknown command %q (try help)\n", fields[0])
		}
		fmt.Fprint(w, "> ")
	}
	return sc.Err()
}
func reportProgress(w io.Writer, updates <-chan session.Snapshot) {
	var last []string
	for s := range updates {
		switch s.State {
		case session.StateLoading:
			fmt.Fprintln(w, "loading paste...")
		case session.StateReady:
			for _, lang := range s.Selection.Pending {
				if !contains(last, lang) {
					fmt.Fprintf(w, "translating to %s...\n", domain.LanguageName(lang))
				}
			}
			last = s.Selection.Pending
		}
	}
}
func render(w io.Writer, s session.Snapshot) {
	switch s.State {
	case session.StateReady:
	case session.StateFailed:
		fmt.Fprintf(w, "error: %s\n", errMsg(s.Err))
		return
	default:
		fmt.Fprintf(w, "[%s]\n", s.State)
		return
	}
	rec, sel := s.Record, s.Selection
	fmt.Fprintf(w, "paste %s | original: %s | tone: %s | created %s\n",
		rec.ID, domain.LanguageName(rec.OriginalLanguage), rec.Tone, rec.CreatedAt.Local().Format(time.RFC822))
	fmt.Fprintf(w, "showing: %s | mode: %s\n", domain.LanguageName(sel.SelectedLanguage), sel.Mode)
	if s.Notice != nil {
		fmt.Fprintf(w, "! could not translate to %s: %s (select it again to retry)\n",
			domain.LanguageName(s.Notice.Language), errMsg(s.Notice.Err))
	}
	d := s.Display()
	if sel.Mode == domain.ModeSideBySide {
		label := domain.LanguageName(sel.SelectedLanguage)
		if !d.MachineTranslated {
			label += " (not translated yet)"
		}
		fmt.Fprintf(w, "--- %s ---\n%s\n--- original (%s) ---\n%s\n",
			label, d.Primary, domain.LanguageName(rec.OriginalLanguage), d.Secondary)
		return
	}
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, d.Primary)
	if d.MachineTranslated {
		fmt.Fprintf(w, "(machine translated from %s)\n", domain.LanguageName(rec.OriginalLanguage))
	}
}
func listLanguages(w io.Writer, s session.Snapshot) {
	for _, code := range domain.SupportedLanguages {
		mark := " "
		switch {
		case s.Record != nil && code == s.Record.OriginalLanguage:
			mark = "o"
		case s.Selection.IsPending(code):
			mark = "~"
		case s.Record != nil && s.Record.IsAvailable(code):
			mark = "*"
		}
		fmt.Fprintf(w, " %s %s  %s\n", mark, code, domain.LanguageName(code))
	}
}

// errMsg prefers the coded error's message over the wrapped chain.
func errMsg(err error) string {
	var de *domain.Err
	if errors.As(err, &de) {
		return de.Msg
	}
	return err.Error()
}
func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
