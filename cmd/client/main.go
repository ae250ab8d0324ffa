package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/client"
	"github.com/sutd_dfs_project/helper"
)

const (
	FILE1 = "file1.txt"
	FILE2 = "file2.txt"
	FILE3 = "file3.txt"

	CHARACTERS = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789\n"
)

const usage = `usage: client [-master URL] <command> [args]

commands:
  upload <local path> [name]   upload a local file
  download <name> <local path> download a file
  delete <name>                delete a file
  size <name>                  print the size of a file
  demo                         write, read back and delete sample files
`

// Creates a byte array with random characters
func generateData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = CHARACTERS[rand.Intn(len(CHARACTERS))]
	}
	return data
}

func main() {
	closer, err := helper.InitLogging("client")
	if err != nil {
		log.Fatal().Err(err).Msg("[Client] Error configuring logging")
	}
	defer closer.Close()

	cfg, err := helper.LoadClientConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("[Client] Invalid configuration")
	}
	flag.StringVar(&cfg.MasterURL, "master", cfg.MasterURL, "Master base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(cfg)
	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("[Client] Command failed")
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch {
	case cmd == "upload" && (len(args) == 1 || len(args) == 2):
		name := filepath.Base(args[0])
		if len(args) == 2 {
			name = args[1]
		}
		return c.UploadFile(ctx, name, args[0])
	case cmd == "download" && len(args) == 2:
		return c.DownloadFile(ctx, args[0], args[1])
	case cmd == "delete" && len(args) == 1:
		return c.Delete(ctx, args[0])
	case cmd == "size" && len(args) == 1:
		size, err := c.Size(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%d (%s)\n", size, datasize.ByteSize(size).HR())
		return nil
	case cmd == "demo" && len(args) == 0:
		return demo(ctx, c)
	}
	flag.Usage()
	os.Exit(2)
	return nil
}

// demo uploads a few generated files, reads each back and deletes them.
func demo(ctx context.Context, c *client.Client) error {
	sizes := map[string]int{FILE1: 65536, FILE2: 10240, FILE3: 66560}
	for _, name := range []string{FILE1, FILE2, FILE3} {
		data := generateData(sizes[name])
		if err := c.Upload(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := c.Download(ctx, name, &buf); err != nil {
			return err
		}
		if !bytes.Equal(buf.Bytes(), data) {
			return fmt.Errorf("%s: downloaded bytes differ from upload", name)
		}
		helper.Banner("Round trip of %s succeeded: %s", name, helper.TruncateOutput(buf.Bytes()))

		if err := c.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
