package upload

// maxBufferRetries bounds consecutive resends of a failed block.
const maxBufferRetries = 3

// BufferSource returns a GetDataFunc that yields data in MaxBlockSize
// blocks. A failed block is resent up to maxBufferRetries times before the
// session is aborted.
func BufferSource(data []byte) GetDataFunc {
	offset := 0
	sent := 0
	failures := 0

	return func(result Result, _ any) ([]byte, Action) {
		if result == ResultOK {
			offset += sent
			failures = 0
		} else {
			failures++
			if failures > maxBufferRetries {
				return nil, ActionAbort
			}
		}

		if offset >= len(data) {
			sent = 0
			return nil, ActionContinue
		}
		end := offset + MaxBlockSize
		if end > len(data) {
			end = len(data)
		}
		sent = end - offset
		return data[offset:end], ActionContinue
	}
}
