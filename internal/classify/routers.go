package classify

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// swapABIJSON covers the router entry points the classifier can decode:
// Uniswap V2 style swaps (including fee-on-transfer variants), Uniswap V3
// exactInput/exactOutput, and the 1inch generic swap. Calldata whose
// selector matches none of these is not a reportable event.
const swapABIJSON = `[
	{"name":"swapExactTokensForTokens","type":"function","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"swapExactETHForTokens","type":"function","inputs":[
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"swapExactTokensForETH","type":"function","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"swapTokensForExactTokens","type":"function","inputs":[
		{"name":"amountOut","type":"uint256"},
		{"name":"amountInMax","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","type":"function","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"swapExactETHForTokensSupportingFeeOnTransferTokens","type":"function","inputs":[
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"exactInputSingle","type":"function","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"fee","type":"uint24"},
			{"name":"recipient","type":"address"},
			{"name":"deadline","type":"uint256"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"},
			{"name":"sqrtPriceLimitX96","type":"uint160"}]}]},
	{"name":"exactInput","type":"function","inputs":[
		{"name":"path","type":"bytes"}]},
	{"name":"exactOutput","type":"function","inputs":[
		{"name":"path","type":"bytes"}]},
	{"name":"swap","type":"function","inputs":[
		{"name":"caller","type":"address"},
		{"name":"srcToken","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"data","type":"bytes"}]}
]`

// parseSwapABI parses the router function set.
func parseSwapABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(swapABIJSON))
}
