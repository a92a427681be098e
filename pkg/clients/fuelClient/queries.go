package fuelClient

const (
	queryChainId = `query getChain {
  chain {
    consensusParameters {
      chainId
    }
  }
}`

	queryBalance = `query getBalance($owner: Address!, $assetId: AssetId!) {
  balance(owner: $owner, assetId: $assetId) {
    amount
  }
}`

	queryCoinsToSpend = `query getCoinsToSpend($owner: Address!, $queryPerAsset: [SpendQueryElementInput!]!) {
  coinsToSpend(owner: $owner, queryPerAsset: $queryPerAsset) {
    ... on Coin {
      utxoId
      owner
      amount
      assetId
      blockCreated
      txCreatedIdx
    }
  }
}`

	mutationEstimatePredicates = `query estimatePredicates($encodedTransaction: HexString!) {
  estimatePredicates(tx: $encodedTransaction) {
    rawPayload
  }
}`

	mutationDryRun = `mutation dryRun($encodedTransactions: [HexString!]!, $utxoValidation: Boolean) {
  dryRun(txs: $encodedTransactions, utxoValidation: $utxoValidation) {
    id
    status {
      __typename
      ... on DryRunFailureStatus {
        reason
      }
    }
    receipts {
      receiptType
      ra
    }
  }
}`

	mutationSubmit = `mutation submit($encodedTransaction: HexString!) {
  submit(tx: $encodedTransaction) {
    id
  }
}`
)
