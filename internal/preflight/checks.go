package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/streadway/amqp"
	"golang.org/x/sys/unix"

	"spritebatch/internal/config"
	"spritebatch/internal/services/detector"
	"spritebatch/internal/services/storage"
)

const (
	endpointTimeout = 5 * time.Second
	serviceTimeout  = 10 * time.Second

	// MinFreeBytes is the free space below which the output root check fails.
	MinFreeBytes uint64 = 512 << 20
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRootDir verifies the directory to scan exists and can be listed.
func CheckRootDir(path string) Result {
	const name = "Image root"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckOutputRoot verifies the output root can be created or written. The
// directory itself may not exist yet; the nearest existing ancestor must then
// be writable.
func CheckOutputRoot(path string) Result {
	const name = "Output root"
	existing, err := nearestExisting(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if existing == path {
		return CheckDirectoryAccess(name, path)
	}
	if err := unix.Access(existing, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, existing, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created under %s)", path, existing)}
}

// CheckFreeSpace reports the space available on the filesystem holding path
// and fails when it drops below minFree.
func CheckFreeSpace(path string, minFree uint64) Result {
	const name = "Free space"
	existing, err := nearestExisting(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(existing, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", existing, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s free on %s (need %s)", humanize.IBytes(free), existing, humanize.IBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free on %s", humanize.IBytes(free), existing)}
}

// CheckEndpoint verifies the detection service host answers HTTP.
func CheckEndpoint(ctx context.Context, client *detector.Client) Result {
	const name = "Detection endpoint"
	if client == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	status, err := client.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%s)", client.Endpoint(), summarizeNetError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (HTTP %d)", client.Endpoint(), status)}
}

// CheckPublish verifies the configured storage bucket can be listed.
func CheckPublish(ctx context.Context, publisher *storage.Publisher) Result {
	const name = "Archive publishing"
	if publisher == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	if err := publisher.Check(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "bucket reachable"}
}

// CheckBroker verifies the AMQP broker accepts a connection.
func CheckBroker(cfg config.Notifications) Result {
	const name = "Notifications broker"
	url := strings.TrimSpace(cfg.AMQPURL)
	if url == "" {
		return Result{Name: name, Detail: "missing amqp url"}
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(serviceTimeout)})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("connect failed (%s)", summarizeNetError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: "connected"}
}

func nearestExisting(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", current)
			}
			return current, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
