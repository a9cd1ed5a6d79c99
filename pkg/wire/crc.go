package wire

// CRC-16/DNP (polynomial 0x3D65, reflected 0xA6BC, inverted result).
// It protects the frame header and every payload block.

var crcTable [256]uint16

func init() {
	const poly uint16 = 0xA6BC

	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// CalculateCRC calculates the CRC-16 of data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(0)
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

// VerifyCRC reports whether the last two bytes of data are the
// little-endian CRC of the bytes before them
func VerifyCRC(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	calculated := CalculateCRC(data[:len(data)-2])
	received := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	return calculated == received
}

// AppendCRC returns a copy of data followed by its CRC
func AppendCRC(data []byte) []byte {
	crc := CalculateCRC(data)
	result := make([]byte, len(data), len(data)+2)
	copy(result, data)
	return append(result, byte(crc), byte(crc>>8))
}

// addBlockCRCs splits data into BlockSize chunks, each followed by its CRC
func addBlockCRCs(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	numBlocks := (len(data) + BlockSize - 1) / BlockSize
	result := make([]byte, 0, len(data)+numBlocks*2)

	for i := 0; i < len(data); i += BlockSize {
		end := min(i+BlockSize, len(data))
		block := data[i:end]
		crc := CalculateCRC(block)
		result = append(result, block...)
		result = append(result, byte(crc), byte(crc>>8))
	}

	return result
}

// removeBlockCRCs verifies and strips the per-block CRCs added by addBlockCRCs
func removeBlockCRCs(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	result := make([]byte, 0, len(data))
	for pos := 0; pos < len(data); {
		blockSize := BlockSize
		if pos+blockSize+2 > len(data) {
			blockSize = len(data) - pos - 2
			if blockSize <= 0 {
				return nil, ErrInvalidCRC
			}
		}

		block := data[pos : pos+blockSize]
		received := uint16(data[pos+blockSize]) | uint16(data[pos+blockSize+1])<<8
		if received != CalculateCRC(block) {
			return nil, ErrInvalidCRC
		}

		result = append(result, block...)
		pos += blockSize + 2
	}

	return result, nil
}

// encodedSize is the on-wire size of a payload of n bytes
func encodedSize(n int) int {
	return n + 2*((n+BlockSize-1)/BlockSize)
}
