package session

// Subscribe returns a channel that receives the latest Session after every change,
// including the end of hydration. Slow readers only see the newest value.
// Call the returned func to stop receiving.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

func (m *Manager) notify(s Session) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
