package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/objectfs/webvfs/internal/filesystem"
	"github.com/objectfs/webvfs/internal/vfs"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

type options struct {
	cwd       string
	recursive bool
	parents   bool
}

type command struct {
	usage   string
	summary string
	minArgs int
	maxArgs int // -1 for unbounded
	run     func(c *commands, ctx context.Context, args []string) error
}

// serveCommand is listed with the others but run by main, which has to
// enable the API before the filesystem is built.
const serveCommand = "serve"

var commandTable = map[string]command{
	"ls":       {"ls [path]", "list a directory", 0, 1, (*commands).ls},
	"cat":      {"cat <path>...", "print file contents", 1, -1, (*commands).cat},
	"write":    {"write <path> [text...]", "replace a file with text or stdin", 1, -1, (*commands).write},
	"append":   {"append <path> [text...]", "append text or stdin to a file", 1, -1, (*commands).appendFile},
	"touch":    {"touch <path>...", "create files or update their timestamps", 1, -1, (*commands).touch},
	"mkdir":    {"mkdir [-p] <path>...", "create directories", 1, -1, (*commands).mkdir},
	"rm":       {"rm [-r] <path>...", "delete files and directories", 1, -1, (*commands).rm},
	"mv":       {"mv <from> <to>", "move or rename", 2, 2, (*commands).mv},
	"rename":   {"rename <path> <name>", "rename within the same directory", 2, 2, (*commands).rename},
	"cp":       {"cp [-r] <from> <to>", "copy files and directories", 2, 2, (*commands).cp},
	"stat":     {"stat <path>", "show metadata", 1, 1, (*commands).stat},
	"du":       {"du [path]", "summarize a directory and the quota", 0, 1, (*commands).du},
	"complete": {"complete [partial]", "list path completions", 0, 1, (*commands).complete},
	"realpath": {"realpath <path>", "print the resolved absolute path", 1, 1, (*commands).realpath},
	"serve":    {"serve [--address addr]", "serve the filesystem over HTTP until interrupted", 0, 0, nil},
}

func commandHelp() string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, name := range names {
		cmd := commandTable[name]
		fmt.Fprintf(w, "  %s\t%s\n", cmd.usage, cmd.summary)
	}
	_ = w.Flush()
	return b.String()
}

// commands executes one CLI command against a filesystem.
type commands struct {
	fs   filesystem.FilesystemInterface
	in   io.Reader
	out  io.Writer
	opts options
}

func newCommands(fs filesystem.FilesystemInterface, in io.Reader, out io.Writer, opts options) *commands {
	return &commands{fs: fs, in: in, out: out, opts: opts}
}

func (c *commands) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}
	cmd, ok := commandTable[args[0]]
	if !ok || cmd.run == nil {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	args = args[1:]
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("usage: webvfs %s", cmd.usage)
	}

	if c.opts.cwd == "" {
		c.opts.cwd = c.fs.HomeDir()
	} else {
		cwd, err := c.fs.ResolveAndValidatePath(c.fs.HomeDir(), c.opts.cwd)
		if err != nil {
			return err
		}
		if !c.fs.IsDirectory(ctx, cwd) {
			return errors.NotDirectory(cwd)
		}
		c.opts.cwd = cwd
	}
	return cmd.run(c, ctx, args)
}

func (c *commands) resolve(target string) (string, error) {
	return c.fs.ResolveAndValidatePath(c.opts.cwd, target)
}

func (c *commands) resolveAll(targets []string) ([]string, error) {
	paths := make([]string, len(targets))
	for i, t := range targets {
		p, err := c.resolve(t)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

func (c *commands) ls(ctx context.Context, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	p, err := c.resolve(target)
	if err != nil {
		return err
	}
	info, err := c.fs.Stat(ctx, p)
	if err != nil {
		return err
	}
	entries := []types.FileInfo{info}
	if info.IsDir() {
		if entries, err = c.fs.ReadDir(ctx, p); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 1, ' ', tabwriter.AlignRight)
	for _, e := range entries {
		kind, name := "-", e.Name
		if e.IsDir() {
			kind, name = "d", name+"/"
		}
		fmt.Fprintf(w, "%s%s\t%d\t %s\t %s\t\n",
			kind, e.Permissions, e.Size, e.Modified.Format(time.DateTime), name)
	}
	return w.Flush()
}

func (c *commands) cat(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := c.fs.ReadFile(ctx, p)
		if err != nil {
			return err
		}
		if _, err := c.out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// content is the text after the path, or stdin when there is none.
func (c *commands) content(args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(strings.Join(args, " ") + "\n"), nil
	}
	return io.ReadAll(c.in)
}

func (c *commands) write(ctx context.Context, args []string) error {
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	data, err := c.content(args[1:])
	if err != nil {
		return err
	}
	return c.fs.WriteFile(ctx, p, data)
}

func (c *commands) appendFile(ctx context.Context, args []string) error {
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	data, err := c.content(args[1:])
	if err != nil {
		return err
	}
	return c.fs.AppendFile(ctx, p, data)
}

func (c *commands) touch(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := c.fs.TouchFile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *commands) mkdir(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := c.fs.Mkdir(ctx, p, vfs.MkdirOptions{Recursive: c.opts.parents}); err != nil {
			return err
		}
	}
	return nil
}

func (c *commands) rm(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := c.fs.Delete(ctx, p, vfs.DeleteOptions{Recursive: c.opts.recursive}); err != nil {
			return err
		}
	}
	return nil
}

func (c *commands) mv(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	return c.fs.Move(ctx, paths[0], paths[1])
}

func (c *commands) rename(ctx context.Context, args []string) error {
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	return c.fs.Rename(ctx, p, args[1])
}

func (c *commands) cp(ctx context.Context, args []string) error {
	paths, err := c.resolveAll(args)
	if err != nil {
		return err
	}
	return c.fs.Copy(ctx, paths[0], paths[1], vfs.CopyOptions{Recursive: c.opts.recursive})
}

func (c *commands) stat(ctx context.Context, args []string) error {
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	info, err := c.fs.Stat(ctx, p)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(w, "Path:\t%s\n", info.Path)
	fmt.Fprintf(w, "Kind:\t%s\n", info.Kind)
	fmt.Fprintf(w, "Size:\t%d\n", info.Size)
	fmt.Fprintf(w, "Permissions:\t%s\n", info.Permissions)
	fmt.Fprintf(w, "Created:\t%s\n", info.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Modified:\t%s\n", info.Modified.Format(time.RFC3339))
	fmt.Fprintf(w, "Accessed:\t%s\n", info.Accessed.Format(time.RFC3339))
	return w.Flush()
}

func (c *commands) du(ctx context.Context, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	p, err := c.resolve(target)
	if err != nil {
		return err
	}
	info, err := c.fs.GetDirectoryInfo(ctx, p)
	if err != nil {
		return err
	}
	usage, err := c.fs.Usage()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s: %d files, %d directories, %s\n",
		info.Path, info.Files, info.Directories, utils.FormatBytes(info.TotalSize))
	if usage.Limit > 0 {
		fmt.Fprintf(c.out, "quota: %s used of %s, %s available\n",
			utils.FormatBytes(usage.Used), utils.FormatBytes(usage.Limit), utils.FormatBytes(usage.Available))
	} else {
		fmt.Fprintf(c.out, "quota: %s used, unlimited\n", utils.FormatBytes(usage.Used))
	}
	return nil
}

func (c *commands) complete(ctx context.Context, args []string) error {
	partial := ""
	if len(args) == 1 {
		partial = args[0]
	}
	completions, err := c.fs.GetPathCompletions(ctx, c.opts.cwd, partial)
	if err != nil {
		return err
	}
	for _, s := range completions {
		fmt.Fprintln(c.out, s)
	}
	return nil
}

func (c *commands) realpath(_ context.Context, args []string) error {
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, p)
	return nil
}
