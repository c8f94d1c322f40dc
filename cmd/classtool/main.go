// classtool - assemble, inspect and store JVM class files
//
// Usage:
//   classtool dump File.class...            # parse and disassemble
//   classtool store put File.class...       # add to the content store
//   classtool store get <hash>              # fetch by hash (or prefix)
//   classtool store ls                      # list stored classes
//   classtool sample [-o dir]               # assemble a demonstration class
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/manifest"
	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/classfile"
	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/classstore"
)

var log = commonlog.GetLogger("classtool")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: classtool [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  dump File.class...      Parse and disassemble class files\n")
		fmt.Fprintf(os.Stderr, "  store put File.class... Add class files to the content store\n")
		fmt.Fprintf(os.Stderr, "  store get <hash>        Fetch a class by content hash\n")
		fmt.Fprintf(os.Stderr, "  store ls                List stored classes\n")
		fmt.Fprintf(os.Stderr, "  sample [-o dir]         Assemble a demonstration class\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		// no classtool.toml; run with defaults rooted in cwd
		dir, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		m = defaultManifest(dir)
	} else {
		log.Infof("using manifest in %s", m.Dir)
	}

	switch args[0] {
	case "dump":
		err = cmdDump(m, args[1:])
	case "store":
		err = cmdStore(m, args[1:])
	case "sample":
		err = cmdSample(m, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultManifest(dir string) *manifest.Manifest {
	m := &manifest.Manifest{Dir: dir}
	m.Target.ClassVersion = classfile.V1_8
	m.Target.OutputDir = "classes"
	m.Store.Path = ".classtool/store.db"
	m.Dump.Lines = true
	m.Dump.Frames = true
	return m
}

func cmdDump(m *manifest.Manifest, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("dump: no class files given")
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		log.Infof("parsed %s (%d bytes)", path, len(data))
		fmt.Print(cf.Listing(m.Dump.Lines, m.Dump.Frames))
	}
	return nil
}

func cmdStore(m *manifest.Manifest, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("store: expected put, get or ls")
	}

	store, err := openStore(m)
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "put":
		if len(args) < 2 {
			return fmt.Errorf("store put: no class files given")
		}
		for _, path := range args[1:] {
			h, name, err := storePut(store, path)
			if err != nil {
				return err
			}
			fmt.Printf("%x  %s\n", h, name)
		}
		return nil

	case "get":
		fs := flag.NewFlagSet("store get", flag.ContinueOnError)
		out := fs.String("o", "", "Write class bytes to this file instead of disassembling")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("store get: expected exactly one hash")
		}
		return storeGet(store, fs.Arg(0), *out)

	case "ls":
		entries, err := store.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%x  %s\n", e.Hash, e.Name)
		}
		return nil

	default:
		return fmt.Errorf("store: unknown subcommand %q", args[0])
	}
}

func openStore(m *manifest.Manifest) (*classstore.Store, error) {
	path := m.StorePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	log.Infof("opening store %s", path)
	return classstore.Open(path)
}

func storePut(store *classstore.Store, path string) ([32]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, "", fmt.Errorf("reading %s: %w", path, err)
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return [32]byte{}, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	meta := &classstore.Meta{
		Name:    cf.ThisName,
		Version: cf.Major,
	}
	for _, method := range cf.Methods {
		meta.Methods = append(meta.Methods, classstore.MethodSig{
			Name:       method.Name,
			Descriptor: method.Descriptor,
		})
	}
	h, err := store.Put(data, meta)
	if err != nil {
		return h, "", fmt.Errorf("storing %s: %w", path, err)
	}
	return h, cf.ThisName, nil
}

func storeGet(store *classstore.Store, key, out string) error {
	h, err := store.ParseHash(key)
	if err != nil {
		return err
	}
	data, meta, err := store.Get(h)
	if err != nil {
		return err
	}
	log.Infof("fetched %s (%d bytes)", meta.Name, len(data))
	if out != "" {
		return os.WriteFile(out, data, 0644)
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return fmt.Errorf("stored bytes for %s do not parse: %w", meta.Name, err)
	}
	fmt.Print(cf.Disassemble())
	return nil
}
