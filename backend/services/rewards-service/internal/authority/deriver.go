// Package authority derives the program-owned addresses of the rewards program: record
// locations and the two signing authorities that only the program can act as.
//
// A derived address is sha256(seeds || bump || program || "ProgramDerivedAddress") for the
// highest bump whose digest is not a valid ed25519 point. Off-curve addresses have no private
// key, so the only way to sign for one is to present its seeds to a verifier that re-derives
// the address under the invoking program's identity.
package authority

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"evrewards/backend/services/rewards-service/internal/address"
)

const (
	// MaxSeeds and MaxSeedLength bound the seed material of a single derivation.
	MaxSeeds      = 16
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrSeedTooLong    = errors.New("authority: seed exceeds 32 bytes")
	ErrTooManySeeds   = errors.New("authority: too many seeds")
	ErrOnCurve        = errors.New("authority: derived address is on the ed25519 curve")
	ErrNoViableBump   = errors.New("authority: no viable bump seed")
	ErrSignerMismatch = errors.New("authority: seeds do not derive the claimed signer")
)

// Seed names one of the program's signing authorities.
type Seed string

const (
	// PlatformAuthority is the delegate drivers approve for point sales.
	PlatformAuthority Seed = "platform_authority"
	// MintAuthority is the sole minter of the reward asset.
	MintAuthority Seed = "mint_authority"
)

const (
	platformSeed = "platform"
	driverSeed   = "driver"
	sessionSeed  = "session"
)

// CreateProgramAddress hashes seeds under program and fails with ErrOnCurve when the result
// is a valid curve point.
func CreateProgramAddress(seeds [][]byte, program address.Address) (address.Address, error) {
	if len(seeds) > MaxSeeds {
		return address.Zero, ErrTooManySeeds
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return address.Zero, ErrSeedTooLong
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var out address.Address
	copy(out[:], h.Sum(nil))
	if onCurve(out) {
		return address.Zero, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first off-curve address.
func FindProgramAddress(seeds [][]byte, program address.Address) (address.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return address.Zero, 0, err
		}
	}
	return address.Zero, 0, ErrNoViableBump
}

func onCurve(a address.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// Signature attributes a ledger instruction to a signer. Owner signatures carry no seeds and
// are honoured only for signers the host verified; program signatures carry the seeds (bump
// included) that derive Signer under the invoking program.
type Signature struct {
	Signer address.Address
	Seeds  [][]byte
}

// SignedBy is the signature of a host-verified signer.
func SignedBy(signer address.Address) Signature {
	return Signature{Signer: signer}
}

// IsProgram reports whether the signature claims a derived authority.
func (s Signature) IsProgram() bool { return len(s.Seeds) > 0 }

// VerifyProgramSignature re-derives the signer from the signature seeds under program.
func VerifyProgramSignature(sig Signature, program address.Address) error {
	if !sig.IsProgram() {
		return ErrSignerMismatch
	}
	derived, err := CreateProgramAddress(sig.Seeds, program)
	if err != nil {
		return err
	}
	if derived != sig.Signer {
		return ErrSignerMismatch
	}
	return nil
}

// Authority is a derived signing identity.
type Authority struct {
	Seed    Seed
	Address address.Address
	Bump    uint8
}

// Signature returns the program signature for this authority.
func (a Authority) Signature() Signature {
	return Signature{
		Signer: a.Address,
		Seeds:  [][]byte{[]byte(a.Seed), {a.Bump}},
	}
}

// Deriver computes the program's addresses. It holds no cache; every call re-derives.
type Deriver struct {
	program address.Address
}

func NewDeriver(program address.Address) Deriver {
	return Deriver{program: program}
}

func (d Deriver) Program() address.Address { return d.program }

// Authority derives one of the program's signing authorities.
func (d Deriver) Authority(seed Seed) (Authority, error) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte(seed)}, d.program)
	if err != nil {
		return Authority{}, fmt.Errorf("derive %s: %w", seed, err)
	}
	return Authority{Seed: seed, Address: addr, Bump: bump}, nil
}

// PlatformAddress is the location of the platform registry singleton.
func (d Deriver) PlatformAddress() (address.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(platformSeed)}, d.program)
	return addr, err
}

// DriverAddress is the location of a driver's record.
func (d Deriver) DriverAddress(driver address.Address) (address.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(driverSeed), driver[:]}, d.program)
	return addr, err
}

// SessionAddress is the location of the index-th session of a driver.
func (d Deriver) SessionAddress(driver address.Address, index uint64) (address.Address, error) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], index)
	addr, _, err := FindProgramAddress([][]byte{[]byte(sessionSeed), driver[:], le[:]}, d.program)
	return addr, err
}
