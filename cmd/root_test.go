package cmd

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

func TestResetFlags(t *testing.T) {
	var name string
	var level int
	var tags []string
	c := &cobra.Command{Use: "tool", Run: func(*cobra.Command, []string) {}}
	c.Flags().StringVar(&name, "name", "default", "")
	c.Flags().IntVar(&level, "level", 9, "")
	c.Flags().StringSliceVar(&tags, "tag", []string{"a", "b"}, "")
	sub := &cobra.Command{Use: "sub"}
	var subFlag bool
	sub.Flags().BoolVar(&subFlag, "on", false, "")
	c.AddCommand(sub)

	if err := c.ParseFlags([]string{"--name", "x", "--level", "3", "--tag", "z"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := sub.ParseFlags([]string{"--on"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := resetFlags(c); err != nil {
		t.Fatalf("resetFlags() error: %v", err)
	}
	if name != "default" || level != 9 || subFlag {
		t.Errorf("unexpected result: name=%q level=%d on=%t", name, level, subFlag)
	}
	if !reflect.DeepEqual(tags, []string{"a", "b"}) {
		t.Errorf("unexpected result: %q", tags)
	}
	if c.Flags().Changed("name") || c.Flags().Changed("tag") {
		t.Errorf("flags still marked as changed")
	}
}
