// kagedb-treeprint applies an insert/delete script to a B+tree index and
// renders the resulting tree, either as a plain dump or as Graphviz dot.
//
// Script format, one command per line:
//
//	i <key>   insert key (the value is the key's RID on page 0)
//	d <key>   delete key
//	p         print the tree to stdout
//	g         emit a dot rendering to stdout
//
// Lines starting with '#' are ignored.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/buffer"
	"github.com/sushant-115/kagedb/core/index/btree"
	"github.com/sushant-115/kagedb/core/storage/disk"
	"github.com/sushant-115/kagedb/core/storage/page"
	"github.com/sushant-115/kagedb/core/transaction"
	"github.com/sushant-115/kagedb/pkg/config"
	"github.com/sushant-115/kagedb/pkg/logger"
	"github.com/sushant-115/kagedb/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a kagedb YAML config file")
	scriptPath := flag.String("script", "", "path to the command script (default: stdin)")
	indexName := flag.String("index", "treeprint", "index name recorded in the header page")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("init telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatal("create data dir", zap.Error(err))
	}
	dm, err := disk.NewFileManager(filepath.Join(cfg.Storage.DataDir, *indexName+".db"), log)
	if err != nil {
		log.Fatal("open database file", zap.Error(err))
	}
	defer dm.Close()

	bpm := buffer.New(cfg.Storage.PoolSize, cfg.Storage.ReplacerK, dm, log, tel.Meter)
	tree, err := btree.New(
		*indexName, bpm, btree.CompareInt64,
		btree.Int64Codec{}, btree.RIDCodec{},
		cfg.Storage.LeafMaxSize, cfg.Storage.InternalMaxSize, log,
	)
	if err != nil {
		log.Fatal("open index", zap.Error(err))
	}

	in := os.Stdin
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			log.Fatal("open script", zap.Error(err))
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "i", "d":
			if len(fields) != 2 {
				log.Warn("malformed command", zap.String("line", line))
				continue
			}
			key, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				log.Warn("malformed key", zap.String("line", line))
				continue
			}
			txn := transaction.New()
			if fields[0] == "i" {
				rid := btree.RID{PageID: page.PageID(0), SlotNum: uint32(key)}
				ok, err := tree.Insert(key, rid, txn)
				if err != nil {
					log.Fatal("insert failed", zap.Int64("key", key), zap.Error(err))
				}
				if !ok {
					log.Warn("duplicate key ignored", zap.Int64("key", key))
				}
			} else {
				if err := tree.Remove(key, txn); err != nil {
					log.Fatal("delete failed", zap.Int64("key", key), zap.Error(err))
				}
			}
		case "p":
			if err := tree.PrintTree(os.Stdout); err != nil {
				log.Fatal("print failed", zap.Error(err))
			}
		case "g":
			if err := tree.ToGraph(os.Stdout); err != nil {
				log.Fatal("graph failed", zap.Error(err))
			}
		default:
			log.Warn("unknown command", zap.String("line", line))
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal("read script", zap.Error(err))
	}
	bpm.FlushAllPages()
}
