package cli

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"proctool/wire"
)

// These five are declared as command variants in original_source's
// Args enum but only DaemonLogs is ever actually handled there (by
// tailing the log file directly in the client); the rest are
// daemon-lifecycle concerns that never pass through wire.Dispatch
// (daemon-kill sends only a bare Kill envelope), so they live here.
var (
	daemonStartCmd = &cobra.Command{
		Use:   "daemon-start",
		Short: "Start proctoold, detached from this terminal",
		Args:  cobra.NoArgs,
		RunE:  runDaemonStart,
	}
	daemonKillCmd = &cobra.Command{
		Use:   "daemon-kill",
		Short: "Tell proctoold to shut down",
		Args:  cobra.NoArgs,
		RunE:  runDaemonKill,
	}
	daemonRestartCmd = &cobra.Command{
		Use:   "daemon-restart",
		Short: "Restart proctoold",
		Args:  cobra.NoArgs,
		RunE:  runDaemonRestart,
	}
	daemonStatusCmd = &cobra.Command{
		Use:   "daemon-status",
		Short: "Report whether proctoold is listening",
		Args:  cobra.NoArgs,
		RunE:  runDaemonStatus,
	}
	daemonLogsCmd = &cobra.Command{
		Use:   "daemon-logs",
		Short: "Follow proctoold's log file",
		Args:  cobra.NoArgs,
		RunE:  runDaemonLogs,
	}
)

func init() {
	rootCmd.AddCommand(daemonStartCmd, daemonKillCmd, daemonRestartCmd, daemonStatusCmd, daemonLogsCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root, err := ProctoolRoot()
	if err != nil {
		return err
	}
	bin := filepath.Join(root, "bin", "proctoold")
	daemon := exec.Command(bin)
	daemon.Stdout = os.Stdout
	daemon.Stderr = os.Stderr
	return daemon.Start()
}

func runDaemonKill(cmd *cobra.Command, args []string) error {
	return sendKill()
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if err := sendKill(); err != nil {
		return err
	}
	return runDaemonStart(cmd, args)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	addr := fmt.Sprintf("127.0.0.1:%d", wire.Port)
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		fmt.Println("not running")
		return nil
	}
	conn.Close()
	fmt.Println("running")
	return nil
}

func runDaemonLogs(cmd *cobra.Command, args []string) error {
	tail := exec.Command("tail", "-f", daemonLogPath())
	tail.Stdout = os.Stdout
	tail.Stderr = os.Stderr
	return tail.Run()
}
