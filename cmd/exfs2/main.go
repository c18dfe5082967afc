// Command exfs2 is the thin CLI front end: a flag-parsed dispatcher over
// the vfs façade, modeled on the teacher's main.go/Interpreter pattern
// (a switch over the first argument) but generalized from the teacher's
// REPL loop over a single disk image to one-shot subcommands against a
// segment-file directory, matching spec.md's external-interface framing
// (a small set of verbs, not an interactive shell).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tranvaj/exfs2/internal/config"
	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/obs"
	"github.com/tranvaj/exfs2/internal/vfs"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}

	cfg := config.Load()
	logger := obs.New(cfg.LogLevel, false)
	defer logger.Sync()

	store, err := vfs.Open(cfg.Dir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nelze otevrit ulozny adresar (could not open store):", err)
		return 1
	}
	defer store.Close()

	cmd, rest := args[0], args[1:]
	var opErr error

	switch cmd {
	case "list":
		opErr = cmdList(store, rest)
	case "add":
		opErr = cmdAdd(store, rest)
	case "extract":
		opErr = cmdExtract(store, rest)
	case "remove":
		opErr = cmdRemove(store, rest)
	case "debug":
		opErr = cmdDebug(store, rest)
	case "copy":
		opErr = cmdCopy(store, rest)
	case "rename":
		opErr = cmdRename(store, rest)
	case "truncate":
		opErr = cmdTruncate(store, rest)
	case "info":
		opErr = cmdInfo(store, rest)
	default:
		usage()
		return 2
	}

	if opErr != nil {
		fmt.Fprintln(os.Stderr, "chyba (error):", opErr)
		return exitCodeFor(opErr)
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: exfs2 <list|add|extract|remove|debug|copy|rename|truncate|info> ...")
}

func exitCodeFor(err error) int {
	var e *exfs2err.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case exfs2err.NotFound:
			return 3
		case exfs2err.AlreadyExists:
			return 4
		case exfs2err.NotADirectory, exfs2err.IsADirectory:
			return 5
		case exfs2err.InvalidName:
			return 6
		case exfs2err.OutOfSpace, exfs2err.FileTooLarge:
			return 7
		case exfs2err.Corruption:
			return 8
		}
	}
	return 1
}

func cmdList(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	path := arg(fl, 0, "/")
	entries, err := store.List(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Printf("%s %10d %s\n", kind, e.Size, e.Path)
	}
	return nil
}

func cmdAdd(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("add", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 2 {
		return fmt.Errorf("usage: add <host-file> <target-path>")
	}
	src, err := os.Open(fl.Arg(0))
	if err != nil {
		return err
	}
	defer src.Close()
	return store.Add(fl.Arg(1), src)
}

func cmdExtract(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("extract", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 2 {
		return fmt.Errorf("usage: extract <target-path> <host-file>")
	}
	dst, err := os.Create(fl.Arg(1))
	if err != nil {
		return err
	}
	defer dst.Close()
	return store.Extract(fl.Arg(0), dst)
}

func cmdRemove(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("remove", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 1 {
		return fmt.Errorf("usage: remove <target-path>")
	}
	return store.Remove(fl.Arg(0))
}

func cmdDebug(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("debug", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	trace, err := store.Debug(arg(fl, 0, "/"))
	for _, c := range trace {
		fmt.Printf("%-20s inode=%d type=%s size=%d direct=%v single=%d double=%d triple=%d\n",
			c.Name, c.Num, c.Type, c.Size, c.Direct, c.Single, c.Double, c.Triple)
	}
	return err
}

func cmdCopy(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("copy", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 2 {
		return fmt.Errorf("usage: copy <src-path> <dst-path>")
	}
	return store.Copy(fl.Arg(0), fl.Arg(1))
}

func cmdRename(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("rename", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 2 {
		return fmt.Errorf("usage: rename <src-path> <dst-path>")
	}
	return store.Rename(fl.Arg(0), fl.Arg(1))
}

func cmdTruncate(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("truncate", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 2 {
		return fmt.Errorf("usage: truncate <target-path> <new-size>")
	}
	var size uint64
	if _, err := fmt.Sscanf(fl.Arg(1), "%d", &size); err != nil {
		return fmt.Errorf("invalid size %q: %w", fl.Arg(1), err)
	}
	return store.Truncate(fl.Arg(0), size)
}

func cmdInfo(store *vfs.FS, args []string) error {
	fl := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	num, in, err := store.Info(arg(fl, 0, "/"))
	if err != nil {
		return err
	}
	fmt.Printf("inode=%d type=%s size=%d direct=%v single=%d double=%d triple=%d\n",
		num, in.Type, in.Size, in.DirectBlocks, in.Single, in.Double, in.Triple)
	return nil
}

func arg(fl *flag.FlagSet, i int, def string) string {
	if i < fl.NArg() {
		return fl.Arg(i)
	}
	return def
}
