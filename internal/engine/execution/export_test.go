package execution

// CheckTimeouts exposes the timeout pass for tests.
func (m *Manager) CheckTimeouts() {
	m.checkTimeouts()
}

// QueuedJobs returns the number of ids waiting in the work queue.
func (m *Manager) QueuedJobs() int {
	return m.work.len()
}
