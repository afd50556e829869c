// Package process supervises long-running child processes.
//
// A Manager starts one binary, forwards its output to the logger line by
// line, and restarts it with exponential backoff when it exits on its own
// or stops answering its health check. Flashline uses it for the managed
// adb server; nothing in it is adb-specific.
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "adb-server",
//	    Binary:           "adb",
//	    Args:             []string{"-P", "5037", "nodaemon", "server"},
//	    RestartOnFailure: true,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
