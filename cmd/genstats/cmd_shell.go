package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/genstats/client/internal/session"
	"github.com/genstats/client/internal/upload"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shellHelp = `Commands:
  :upload <file>   upload a dataset and make it current
  :summary         fetch the summary of the current dataset
  :ask <query>     request AI insights
  :status          show the session state
  :help            show this help
  :quit            leave the shell
Any other line is sent over the realtime channel.`

func newShellCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with the realtime channel attached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.open(ctx, openOptions{realtime: c.cfg.Backend.EnableRealtime})
			if err != nil {
				return err
			}
			defer a.close()

			sh := &shell{app: a, out: cmd.OutOrStdout()}
			err = sh.run(ctx, cmd.InOrStdin())
			if saveErr := a.save(); saveErr != nil {
				return errors.Join(err, saveErr)
			}
			return err
		},
	}
}

type shell struct {
	app   *app
	out   io.Writer
	outMu sync.Mutex
}

func (s *shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

var errQuit = errors.New("quit")

func (s *shell) run(ctx context.Context, in io.Reader) error {
	if s.app.channel != nil {
		_ = s.app.client.OnRealtimeMessage(func(msg string) {
			s.printf("<< %s\n", msg)
		})
		s.printf("Realtime channel connected.\n")
	}
	s.printf("genstats shell, session %q. Type :help for commands.\n", s.app.name)

	g, gctx := errgroup.WithContext(ctx)

	// The scanner cannot be interrupted, so it runs outside the group
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := s.handle(gctx, line); err != nil {
					return err
				}
			}
		}
	})
	if ch := s.app.channel; ch != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-ch.Done():
				if err := ch.Err(); err != nil {
					s.printf("Realtime channel lost: %v\n", err)
				} else {
					s.printf("Realtime channel closed by server.\n")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// handle runs one input line. Operation failures are printed, not returned;
// only errQuit ends the loop.
func (s *shell) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	client := s.app.client

	var err error
	switch cmd {
	case ":quit", ":exit", ":q":
		return errQuit
	case ":help":
		s.printf("%s\n", shellHelp)
	case ":upload":
		if arg == "" {
			s.printf("usage: :upload <file>\n")
			return nil
		}
		file, rerr := upload.ReadFile(arg)
		if rerr != nil {
			err = rerr
			break
		}
		client.SelectFile(file)
		handle, uerr := client.UploadFile(ctx)
		if uerr == nil {
			s.printf("Uploaded %s as %s\n", file.Name, handle)
		}
		err = uerr
	case ":summary":
		summary, ferr := client.FetchSummary(ctx)
		if ferr == nil {
			s.printf("%s\n", summary.Indent())
		}
		err = ferr
	case ":ask":
		answer, aerr := client.SubmitInsightQuery(ctx, arg)
		if aerr == nil {
			s.printf("%s\n", answer)
		}
		err = aerr
	case ":status":
		st := client.State()
		s.printf("dataset=%q summary=%dB query=%q\n", st.Handle, len(st.Summary), st.InsightQuery)
	default:
		if strings.HasPrefix(cmd, ":") {
			s.printf("Unknown command %s. Type :help.\n", cmd)
			return nil
		}
		err = client.SendRealtimeMessage(line)
	}

	if err != nil {
		s.printf("error: %v\n", err)
		if session.IsPrecondition(err) {
			s.printf("hint: %s\n", hintFor(err))
		}
	}
	return nil
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, session.ErrNoDatasetSelected):
		return "upload a dataset first with :upload <file>"
	case errors.Is(err, session.ErrEmptyQuery):
		return "type a question after :ask"
	case errors.Is(err, session.ErrRealtimeUnavailable):
		return "enable backend.enableRealtime in the config"
	default:
		return "select a file first"
	}
}
