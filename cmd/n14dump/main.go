// n14dump prints the chatroom stored in an n14 SQLite database or Redis
// namespace.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/nil071n/N14/core"
)

var (
	HeaderColor = color.New(color.FgMagenta, color.Bold).SprintFunc()
	InfoColor   = color.New(color.FgCyan).SprintFunc()
	OnlineColor = color.New(color.FgGreen).SprintFunc()
	MutedColor  = color.New(color.FgHiBlack).SprintFunc()
	ErrorColor  = color.New(color.FgRed).SprintFunc()

	// handleColors follows the color-1 .. color-6 classes of ColorClass.
	handleColors = map[string]*color.Color{
		"color-1": color.New(color.FgGreen, color.Bold),
		"color-2": color.New(color.FgCyan, color.Bold),
		"color-3": color.New(color.FgYellow, color.Bold),
		"color-4": color.New(color.FgMagenta, color.Bold),
		"color-5": color.New(color.FgBlue, color.Bold),
		"color-6": color.New(color.FgRed, color.Bold),
	}
)

type options struct {
	thread string
	roster bool
	unread bool
}

func main() {
	file := flag.String("db", "./n14.db", "path to the SQLite database")
	redisAddr := flag.String("redis", "", "read from the Redis server at this address instead of SQLite")
	redisPrefix := flag.String("prefix", "n14:", "key prefix of the Redis namespace")
	thread := flag.String("thread", "", "only print this thread: a channel name or two handles joined by ::")
	roster := flag.Bool("roster", false, "print registered users and their presence")
	unread := flag.Bool("unread", false, "print unread counts per user")
	noColor := flag.Bool("no-color", false, "disable colored output")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	ctx := context.Background()
	var store core.ListableStore
	if *redisAddr != "" {
		rdb, err := core.NewRedisClient(ctx, core.RedisOptions{Addr: *redisAddr, Prefix: *redisPrefix})
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorColor("connect redis:"), err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = core.NewRedisStore(rdb, *redisPrefix)
	} else {
		db, err := core.NewSQLiteDB(*file, &core.SQLiteDBOption{Mode: "ro"})
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorColor("open database:"), err)
			os.Exit(1)
		}
		defer db.Close()
		store = core.NewSQLiteStore(db.DB)
	}

	opts := options{thread: *thread, roster: *roster, unread: *unread}
	if err := dump(ctx, os.Stdout, store, opts); err != nil {
		fmt.Fprintln(os.Stderr, ErrorColor("dump:"), err)
		os.Exit(1)
	}
}

// timestamped is implemented by stores that record write times.
type timestamped interface {
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
}

func dump(ctx context.Context, w io.Writer, store core.ListableStore, opts options) error {
	chat := core.NewChatStore(store, core.SystemClock)
	state, err := chat.Load(ctx)
	if err != nil {
		return err
	}
	if ts, ok := store.(timestamped); ok {
		updated, err := ts.UpdatedAt(ctx, core.ChatStateKey)
		if err != nil {
			return err
		}
		if !updated.IsZero() {
			fmt.Fprintln(w, MutedColor("last write "+updated.Format(time.RFC3339)))
		}
	}

	for _, name := range sortedKeys(state.Channels) {
		if opts.thread == "" || opts.thread == name {
			printThread(w, "#"+name, state.Channels[name])
		}
	}
	for _, key := range sortedKeys(state.DMs) {
		if opts.thread == "" || opts.thread == key {
			printThread(w, "@"+key, state.DMs[key])
		}
	}

	if opts.roster {
		if err := printRoster(ctx, w, store); err != nil {
			return err
		}
	}
	if opts.unread {
		return printUnread(ctx, w, store, state)
	}
	return nil
}

func printThread(w io.Writer, title string, msgs []core.Message) {
	fmt.Fprintln(w, HeaderColor(title), MutedColor(fmt.Sprintf("(%d)", len(msgs))))
	if len(msgs) == 0 {
		fmt.Fprintln(w, MutedColor("  no messages yet"))
	}
	for _, m := range msgs {
		from := handleColors[core.ColorClass(m.From)].Sprint(m.From + ":")
		fmt.Fprintf(w, "  %s > %s %s\n", MutedColor("["+m.Time+"]"), from, m.Text)
	}
	fmt.Fprintln(w)
}

func printRoster(ctx context.Context, w io.Writer, store core.ListableStore) error {
	users := core.NewUserDirectory(store)
	handles, err := users.Handles(ctx)
	if err != nil {
		return err
	}
	p, err := core.NewPresenceTracker(store, core.SystemClock, slog.Default()).Load(ctx)
	if err != nil {
		return err
	}
	online, offline := core.Partition(handles, p, time.Now())

	fmt.Fprintln(w, HeaderColor(fmt.Sprintf("online (%d)", len(online))))
	for _, h := range online {
		fmt.Fprintf(w, "  %s %s\n", OnlineColor("●"), h)
	}
	fmt.Fprintln(w, HeaderColor(fmt.Sprintf("offline (%d)", len(offline))))
	for _, h := range offline {
		fmt.Fprintf(w, "  %s %s\n", MutedColor("○"), h)
	}
	fmt.Fprintln(w)
	return nil
}

// printUnread prints, for every user with read state, the threads holding
// messages they have not seen.
func printUnread(ctx context.Context, w io.Writer, store core.ListableStore, state *core.ChatState) error {
	keys, err := store.Keys(ctx, core.ReadStatePrefix)
	if err != nil {
		return err
	}
	reads := core.NewReadStateTracker(store, core.SystemClock)

	fmt.Fprintln(w, HeaderColor("unread"))
	for _, key := range keys {
		user := strings.TrimPrefix(key, core.ReadStatePrefix)
		rs, err := reads.Load(ctx, user)
		if err != nil {
			return err
		}

		var counts []string
		for _, name := range sortedKeys(state.Channels) {
			key := core.ChannelThreadKey(name)
			if n := core.UnreadCount(rs, user, key, state.Channels[name]); n > 0 {
				counts = append(counts, fmt.Sprintf("#%s %d", name, n))
			}
		}
		for _, conv := range core.ListDirectConversations(state, rs, user) {
			if conv.Unread > 0 {
				counts = append(counts, fmt.Sprintf("@%s %d", conv.With, conv.Unread))
			}
		}
		if len(counts) == 0 {
			counts = append(counts, MutedColor("none"))
		}
		fmt.Fprintf(w, "  %s %s\n", InfoColor(user+":"), strings.Join(counts, ", "))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
