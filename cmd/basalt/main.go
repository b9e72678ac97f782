// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Command basalt inspects basalt blob files.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "basalt",
		Short: "basalt blob storage tools",
	}
	blob := &cobra.Command{
		Use:   "blob",
		Short: "blob file commands",
	}
	blob.AddCommand(dumpCmd(), propsCmd())
	root.AddCommand(blob)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openReader(path string) (*blobfile.FileReader, error) {
	fi, err := vfs.Default.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := vfs.Default.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := blobfile.NewFileReader(f, base.DiskFileNum(0), uint64(fi.Size()))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func dumpCmd() *cobra.Command {
	var maxValueLen int
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "list the records of a blob file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			it := r.NewIter()
			defer func() { _ = it.Close() }()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Order", "Offset", "Size", "Key", "Value"})
			for valid := it.First(); valid; valid = it.Next() {
				h := it.Handle()
				value := it.Value()
				if len(value) > maxValueLen {
					value = value[:maxValueLen]
				}
				table.Append([]string{
					strconv.FormatUint(uint64(h.Order), 10),
					strconv.FormatUint(h.Offset, 10),
					strconv.FormatUint(h.Size, 10),
					fmt.Sprintf("%q", it.Key()),
					fmt.Sprintf("%q", value),
				})
			}
			if err := it.Error(); err != nil {
				return err
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&maxValueLen, "max-value-len", 32, "truncate printed values to this many bytes")
	return cmd
}

func propsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "props <file>",
		Short: "show a blob file's footer properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fi, err := vfs.Default.Stat(args[0])
			if err != nil {
				return err
			}
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			fmt.Printf("format:      %s\n", blobfile.FileFormatV1)
			fmt.Printf("file size:   %d\n", fi.Size())
			fmt.Printf("entry count: %d\n", r.EntryCount())
			return nil
		},
	}
}
