package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/sftp"
)

// FetchFile copies remotePath from the host into w over SFTP and returns
// the number of bytes written.
func (c *SSHClient) FetchFile(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	conn, err := c.ConnectWithRetry(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return 0, fmt.Errorf("failed to create sftp client: %w", err)
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer remoteFile.Close()

	stat, err := remoteFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat remote file: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			remoteFile.Close()
		case <-done:
		}
	}()

	written, err := remoteFile.WriteTo(w)
	if err != nil {
		return written, fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	if written != stat.Size() {
		return written, fmt.Errorf("download incomplete: expected %d bytes, got %d", stat.Size(), written)
	}
	return written, nil
}
