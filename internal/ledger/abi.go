package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, trimmed to the methods this backend calls.

const gameABIJSON = `[
  {"type":"function","name":"nextGameId","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getGameState","stateMutability":"view",
   "inputs":[{"name":"gameId","type":"uint256"}],
   "outputs":[
     {"name":"symbol","type":"string"},
     {"name":"startAt","type":"uint256"},
     {"name":"joinEndsAt","type":"uint256"},
     {"name":"endsAt","type":"uint256"},
     {"name":"active","type":"bool"},
     {"name":"resolved","type":"bool"},
     {"name":"fixedBetAmount","type":"uint256"},
     {"name":"totalPool","type":"uint256"},
     {"name":"winner","type":"address"},
     {"name":"finalPrice","type":"uint256"}]},
  {"type":"function","name":"getPlayers","stateMutability":"view",
   "inputs":[{"name":"gameId","type":"uint256"}],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getPlayerGuess","stateMutability":"view",
   "inputs":[{"name":"gameId","type":"uint256"},{"name":"player","type":"address"}],
   "outputs":[
     {"name":"guessPrice","type":"uint256"},
     {"name":"joined","type":"bool"},
     {"name":"claimed","type":"bool"}]},
  {"type":"function","name":"joinGame","stateMutability":"payable",
   "inputs":[{"name":"gameId","type":"uint256"},{"name":"guessPrice","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"resolveGame","stateMutability":"nonpayable",
   "inputs":[{"name":"gameId","type":"uint256"}],
   "outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const factoryABIJSON = `[
  {"type":"function","name":"getAddress","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"createAccount","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const delegationManagerABIJSON = `[
  {"type":"function","name":"redeemDelegations","stateMutability":"nonpayable",
   "inputs":[
     {"name":"delegations","type":"tuple[]","components":[
       {"name":"delegate","type":"address"},
       {"name":"delegator","type":"address"},
       {"name":"authority","type":"bytes32"},
       {"name":"caveats","type":"tuple[]","components":[
         {"name":"enforcer","type":"address"},
         {"name":"terms","type":"bytes"}]},
       {"name":"salt","type":"uint256"},
       {"name":"signature","type":"bytes"}]},
     {"name":"modes","type":"uint8[]"},
     {"name":"executions","type":"tuple[]","components":[
       {"name":"target","type":"address"},
       {"name":"value","type":"uint256"},
       {"name":"callData","type":"bytes"}]}],
   "outputs":[]}
]`

var (
	gameABI              = mustParseABI(gameABIJSON)
	erc20ABI             = mustParseABI(erc20ABIJSON)
	factoryABI           = mustParseABI(factoryABIJSON)
	delegationManagerABI = mustParseABI(delegationManagerABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: parsing ABI: " + err.Error())
	}
	return parsed
}
