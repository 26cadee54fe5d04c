package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type DumpSpec struct {
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Dumper shells out to pg_dump or mysqldump. Passwords are passed through
// the environment so they never show up in the process list.
type Dumper struct {
	pgDump    string
	mysqlDump string
}

func NewDumper(pgDump, mysqlDump string) *Dumper {
	return &Dumper{pgDump: pgDump, mysqlDump: mysqlDump}
}

func (d *Dumper) Dump(ctx context.Context, spec DumpSpec, w io.Writer) error {
	var cmd *exec.Cmd
	switch spec.Type {
	case "postgres":
		cmd = exec.CommandContext(ctx, d.pgDump,
			"-h", spec.Host, "-p", strconv.Itoa(spec.Port), "-U", spec.User,
			"--no-password", "--format=plain", spec.Database)
		cmd.Env = append(os.Environ(), "PGPASSWORD="+spec.Password)
	case "mysql":
		cmd = exec.CommandContext(ctx, d.mysqlDump,
			"-h", spec.Host, "-P", strconv.Itoa(spec.Port), "-u", spec.User,
			"--single-transaction", "--routines", spec.Database)
		cmd.Env = append(os.Environ(), "MYSQL_PWD="+spec.Password)
	default:
		return fmt.Errorf("unsupported database type %q", spec.Type)
	}

	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("dump cancelled: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s dump of %s failed: %s", spec.Type, spec.Database, msg)
	}
	return nil
}
