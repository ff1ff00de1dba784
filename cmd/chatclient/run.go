package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/session"
	"chatclient/internal/app/user"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chat interactively in the terminal",
	Long: `Chat interactively in the terminal.

Every line typed is sent as a message. Commands:
  /typing   show the typing indicator to others
  /users    list who is online
  /logout   forget the identity and sign in again
  /quit     exit`,
	Args: cobra.NoArgs,
	RunE: runTerminal,
}

func runTerminal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer a.close()

	a.manager.Start(ctx)

	t := newTerminal(a.manager, cmd.OutOrStdout())
	go t.watch(ctx)

	return t.interact(ctx, cmd.InOrStdin())
}

// chatSession is the part of session.Manager the terminal drives.
type chatSession interface {
	Snapshot() session.State
	Changes() <-chan struct{}
	Login(name string) (user.User, bool)
	Logout() bool
	SendMessage(text string) (chat.Message, bool)
	SetTyping(isTyping bool)
}

// terminal renders session changes as lines of text and turns input lines into actions.
type terminal struct {
	session chatSession

	mu      sync.Mutex
	out     io.Writer
	printed int
	status  session.Status
	typing  string
}

func newTerminal(s chatSession, out io.Writer) *terminal {
	return &terminal{session: s, out: out, status: session.Disconnected}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// watch re-renders on every change until ctx ends.
func (t *terminal) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.session.Changes():
			t.render(t.session.Snapshot())
		}
	}
}

// render prints what changed since the previous call: new messages, status and typing.
func (t *terminal) render(st session.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st.ConnectionStatus != t.status {
		t.status = st.ConnectionStatus
		line := fmt.Sprintf("-- %s", st.ConnectionStatus)
		if st.ConnectionStatus == session.Disconnected && st.LastError != "" {
			line += ": " + st.LastError
		}
		fmt.Fprintln(t.out, line)
	}

	if t.printed > len(st.Messages) {
		t.printed = 0
	}
	for _, msg := range st.Messages[t.printed:] {
		fmt.Fprintln(t.out, formatMessage(st, msg))
	}
	t.printed = len(st.Messages)

	typing := typingLine(st)
	if typing != t.typing {
		t.typing = typing
		if typing != "" {
			fmt.Fprintln(t.out, typing)
		}
	}
}

func formatMessage(st session.State, msg chat.Message) string {
	if msg.SenderID == user.SystemID {
		return "* " + msg.Text
	}
	return fmt.Sprintf("<%s> %s", displayName(st, msg.SenderID), msg.Text)
}

func displayName(st session.State, id string) string {
	if id == user.SystemID {
		return user.SystemUser.Name
	}
	if u, ok := st.LookupUser(id); ok && u.Name != "" {
		return u.Name
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// typingLine describes who else is typing, or returns "".
func typingLine(st session.State) string {
	var names []string
	for _, id := range st.TypingUserIDs {
		if st.CurrentUser != nil && id == st.CurrentUser.ID {
			continue
		}
		names = append(names, displayName(st, id))
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}

// interact reads lines from in until EOF, /quit or ctx ends.
func (t *terminal) interact(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	if t.session.Snapshot().CurrentUser == nil {
		t.printf("Your name: ")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := t.handleLine(line); quit {
				return nil
			}
		}
	}
}

// handleLine applies one input line. It reports true when the user asked to quit.
func (t *terminal) handleLine(line string) bool {
	line = strings.TrimSpace(line)

	if t.session.Snapshot().CurrentUser == nil {
		if line == "/quit" {
			return true
		}
		u, ok := t.session.Login(line)
		if !ok {
			t.printf("Please enter a name.\nYour name: ")
			return false
		}
		t.printf("Signed in as %s\n", u.Name)
		return false
	}

	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/typing":
		t.session.SetTyping(true)
	case "/users":
		t.printUsers(t.session.Snapshot())
	case "/logout":
		t.session.Logout()
		t.printf("Signed out.\nYour name: ")
	default:
		if _, ok := t.session.SendMessage(line); !ok {
			t.printf("(not connected, message not sent)\n")
			return false
		}
		t.session.SetTyping(false)
	}
	return false
}

// printUsers lists the online participants. The system sender is not a participant.
func (t *terminal) printUsers(st session.State) {
	users := slices.DeleteFunc(slices.Clone(st.Users), func(u user.User) bool {
		return !u.Online || u.IsSystem()
	})
	slices.SortFunc(users, func(a, b user.User) int { return strings.Compare(a.Name, b.Name) })

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "%d online:\n", len(users))
	for _, u := range users {
		me := ""
		if st.CurrentUser != nil && u.ID == st.CurrentUser.ID {
			me = " (you)"
		}
		fmt.Fprintf(t.out, "  %s%s\n", u.Name, me)
	}
}
