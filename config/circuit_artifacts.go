package config

const (
	// ArtifactsDirEnv is the environment variable that overrides the base
	// directory of the circuit artifacts.
	ArtifactsDirEnv = "RLN_ARTIFACTS_DIR"
	// CheckHashesEnv is the environment variable that disables the hash
	// check of hash-addressed artifacts when set to "false" or "0".
	CheckHashesEnv = "RLN_CHECK_HASHES"
	// DefaultArtifactsDirName is the directory created under the user cache
	// directory when ArtifactsDirEnv is not set.
	DefaultArtifactsDirName = "rln-artifacts"

	// RLN circuit artifacts, stored under <base>/rln/<tree depth>/
	RLNCircuitDir            = "rln"
	RLNWitnessCalculatorFile = "rln.wasm"
	RLNProvingKeyFile        = "rln_final.zkey"
	RLNVerificationKeyFile   = "verification_key.json"

	// Withdraw circuit artifacts, stored under <base>/withdraw/
	WithdrawCircuitDir            = "withdraw"
	WithdrawWitnessCalculatorFile = "withdraw.wasm"
	WithdrawProvingKeyFile        = "withdraw_final.zkey"
	WithdrawVerificationKeyFile   = "verification_key.json"
)
