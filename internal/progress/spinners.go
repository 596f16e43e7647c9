// Package progress prints the Env's three progress signals (§6) to the terminal,
// external to the core per §1's scope note. Adapted from the teacher's
// BBSpinnerManager: one ysmrr spinner per phase, its message updated on
// every progress tick instead of one spinner per job, since the core
// reports phase-level counters rather than per-job status.
package progress

import (
	"fmt"

	"github.com/chelnak/ysmrr"
)

// Manager owns one spinner per pipeline phase and updates it from the
// Env's ProgressFunc signals.
type Manager struct {
	manager ysmrr.SpinnerManager

	retrieveAndBuild *ysmrr.Spinner
	install          *ysmrr.Spinner
	upload           *ysmrr.Spinner
}

// New creates a Manager with a spinner for the retrieve-and-build phase
// and the install phase; AddUpload adds the optional third.
func New() *Manager {
	m := ysmrr.NewSpinnerManager()
	return &Manager{
		manager:          m,
		retrieveAndBuild: m.AddSpinner("resolving requirements..."),
		install:          m.AddSpinner("waiting to install..."),
	}
}

// AddUpload adds the upload phase's spinner; call only when the upload
// phase is enabled, so an install-only run never shows an idle spinner.
func (m *Manager) AddUpload() {
	m.upload = m.manager.AddSpinner("waiting to upload...")
}

func (m *Manager) Start() { m.manager.Start() }
func (m *Manager) Stop()  { m.manager.Stop() }

// OnRetrieveAndBuild is an env.ProgressFunc for update_retrieve_and_build.
func (m *Manager) OnRetrieveAndBuild(total, retrieved, built, failed int) {
	m.retrieveAndBuild.UpdateMessage(fmt.Sprintf(
		"resolving requirements: %d/%d built, %d retrieved, %d failed", built, total, retrieved, failed))
	if total > 0 && built+failed >= total {
		if failed > 0 {
			m.retrieveAndBuild.Error()
		} else {
			m.retrieveAndBuild.Complete()
		}
	}
}

// OnInstall is an env.ProgressFunc for update_install.
func (m *Manager) OnInstall(total, installed, _, _ int) {
	m.install.UpdateMessage(fmt.Sprintf("installing: %d/%d", installed, total))
	if total > 0 && installed >= total {
		m.install.Complete()
	}
}

// OnUpload is an env.ProgressFunc for update_upload.
func (m *Manager) OnUpload(total, uploaded, _, _ int) {
	if m.upload == nil {
		return
	}
	m.upload.UpdateMessage(fmt.Sprintf("uploading: %d/%d", uploaded, total))
	if total > 0 && uploaded >= total {
		m.upload.Complete()
	}
}
