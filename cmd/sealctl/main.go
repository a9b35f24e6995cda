// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sealctl is a small command-line front end over a Fixed-key DataSealer,
// useful for ad hoc wrap/unwrap/keygen operations and for generating a
// keystore entry consumable by KeystoreStrategy.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"sealcore.io/datasealer"
	"sealcore.io/idgen"
	"sealcore.io/keystrategy"
)

var (
	keyHex  = flag.String("key", "", "32-byte AES key, hex encoded")
	label   = flag.String("label", "default", "key label")
	expires = flag.Int64("expires", 0, "expiration, unix milliseconds (0 = never)")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sealctl [flags] wrap <data> | unwrap <blob> | keygen-label | keystore-entry <password> <alias> <secret-hex>")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("sealctl: ")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	switch args[0] {
	case "wrap":
		if len(args) != 2 {
			usage()
		}
		cmdWrap(args[1])
	case "unwrap":
		if len(args) != 2 {
			usage()
		}
		cmdUnwrap(args[1])
	case "keygen-label":
		cmdKeygenLabel()
	case "keystore-entry":
		if len(args) != 4 {
			usage()
		}
		cmdKeystoreEntry(args[1], args[2], args[3])
	default:
		usage()
	}
}

func mustKey() []byte {
	if *keyHex == "" {
		log.Fatal("-key is required")
	}
	key, err := hex.DecodeString(*keyHex)
	if err != nil {
		log.Fatalf("decoding -key: %v", err)
	}
	if len(key) != 32 {
		log.Fatalf("-key must decode to 32 bytes, got %d", len(key))
	}
	return key
}

func sealer() *datasealer.DataSealer {
	strat, err := keystrategy.NewFixed(keystrategy.Label(*label), mustKey())
	if err != nil {
		log.Fatalf("constructing key strategy: %v", err)
	}
	d, err := datasealer.New(datasealer.WithKeyStrategy(strat))
	if err != nil {
		log.Fatalf("constructing data sealer: %v", err)
	}
	return d
}

func cmdWrap(data string) {
	blob, err := sealer().Wrap(data, *expires)
	if err != nil {
		log.Fatalf("wrap: %v", err)
	}
	fmt.Println(blob)
}

func cmdUnwrap(blob string) {
	data, outLabel, err := sealer().Unwrap(blob)
	if err != nil {
		log.Fatalf("unwrap: %v", err)
	}
	fmt.Printf("label: %s\ndata: %s\n", outLabel, data)
}

func cmdKeygenLabel() {
	gen := idgen.Random{}
	id, err := gen.NextID()
	if err != nil {
		log.Fatalf("generating label: %v", err)
	}
	fmt.Println(id)
}

func cmdKeystoreEntry(password, alias, secretHex string) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		log.Fatalf("decoding secret: %v", err)
	}
	entry, err := keystrategy.BuildKeystoreEntry(password, alias, secret)
	if err != nil {
		log.Fatalf("building keystore entry: %v", err)
	}
	fmt.Println(entry)
}
