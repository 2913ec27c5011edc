package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// CLI 把 migrate 子命令翻译成 Migrator 调用并打印结果
type CLI struct {
	m   Migrator
	out io.Writer
}

// NewCLI 默认输出到 stdout
func NewCLI(m Migrator) *CLI {
	return &CLI{m: m, out: os.Stdout}
}

// SetOutput 重定向输出
func (c *CLI) SetOutput(w io.Writer) *CLI {
	c.out = w
	return c
}

// Run 无子命令时显示 status
func (c *CLI) Run(ctx context.Context, args []string) error {
	cmd := "status"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		return c.change(ctx, "apply pending migrations", c.m.Up)
	case "down":
		return c.change(ctx, "roll back one migration", c.m.Down)
	case "down-all":
		return c.change(ctx, "roll back every migration", c.m.DownAll)
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return c.change(ctx, fmt.Sprintf("move %+d migration(s)", n), func(ctx context.Context) error {
			return c.m.Steps(ctx, n)
		})
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return c.change(ctx, fmt.Sprintf("force version %d", v), func(ctx context.Context) error {
			return c.m.Force(ctx, v)
		})
	case "version":
		return c.version(ctx)
	case "status":
		return c.status(ctx)
	case "info":
		return c.info(ctx)
	}
	return fmt.Errorf("unknown migrate command: %s", cmd)
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", args[0], args[1])
	}
	return n, nil
}

// change 执行一次变更，然后打印新版本
func (c *CLI) change(ctx context.Context, what string, fn func(context.Context) error) error {
	fmt.Fprintf(c.out, "==> %s\n", what)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return c.version(ctx)
}

func (c *CLI) version(ctx context.Context) error {
	v, dirty, err := c.m.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case v == 0:
		fmt.Fprintln(c.out, "schema version: none")
	case dirty:
		fmt.Fprintf(c.out, "schema version: %d (dirty)\n", v)
	default:
		fmt.Fprintf(c.out, "schema version: %d\n", v)
	}
	return nil
}

func (c *CLI) status(ctx context.Context) error {
	steps, err := c.m.Status(ctx)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Fprintln(c.out, "no embedded migrations")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, st := range steps {
		state := "pending"
		switch {
		case st.Dirty:
			state = "dirty"
		case st.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", st.Version, st.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := summarize(steps)
	fmt.Fprintf(c.out, "\n%d applied, %d pending\n", sum.Applied, sum.Pending)
	return nil
}

func (c *CLI) info(ctx context.Context) error {
	sum, err := c.m.Summary(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "current:\t%d\n", sum.Current)
	fmt.Fprintf(tw, "dirty:\t%t\n", sum.Dirty)
	fmt.Fprintf(tw, "total:\t%d\n", sum.Total)
	fmt.Fprintf(tw, "applied:\t%d\n", sum.Applied)
	fmt.Fprintf(tw, "pending:\t%d\n", sum.Pending)
	return tw.Flush()
}
