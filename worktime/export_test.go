package worktime

// Held exposes the number of live lock keys to external tests.
func (k *KeyedMutex) Held() int { return k.held() }
