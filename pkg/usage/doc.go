// Package usage records one access record per request and turns them into
// monthly unique-device reports.
//
// # Components
//
//   - Record and Storage: the access log entry and the backend interface.
//     Backends live in the storage subpackage (memory, and SQLite through
//     either the pure Go or the cgo driver).
//   - recorder.Recorder: buffers records and writes them from a background
//     worker so requests never wait on storage.
//   - retention.Pruner and retention.Scheduler: delete old records on a
//     cron schedule.
//   - Reporter: counts the distinct session ids and requests of a month
//     and renders the plain-text report.
//
// # Counting
//
// Requests made without a session cookie are recorded under UnknownSession
// and excluded from both report counts: they identify no device. A month
// always refers to its most recent occurrence, so asking for December in
// March reports last December.
//
// # Basic Usage
//
//	store, err := storage.Open(cfg.Usage.Backend, cfg.Usage.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, nil)
//	defer rec.Close()
//
//	reporter := usage.NewReporter(store, usage.ReporterConfig{
//	    Company: cfg.Relay.LicenseCompany,
//	    Dir:     cfg.Usage.ReportsDir,
//	})
//	path, report, err := reporter.WriteFile(ctx, 10)
package usage
