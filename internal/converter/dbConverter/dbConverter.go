package dbConverter

import (
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/model/dbModel"
)

func ConvertTransaction(dbTx dbModel.Transaction) model.Transaction {
	return model.Transaction{
		ID:                 dbTx.ID,
		UserID:             dbTx.UserID,
		Symbol:             dbTx.Symbol,
		Kind:               model.TransactionKind(dbTx.Kind),
		Quantity:           dbTx.Quantity,
		RemainingQuantity:  dbTx.RemainingQuantity,
		Fee:                dbTx.Fee,
		PricePerShare:      dbTx.PricePerShare,
		DirtyPricePerShare: dbTx.DirtyPricePerShare,
		CostOfShares:       dbTx.CostOfShares,
		TotalCost:          dbTx.TotalCost,
		Pnl:                dbTx.Pnl,
		TransactionDate:    dbTx.TransactionDate,
	}
}

func ConvertUser(dbUser dbModel.User) model.User {
	return model.User{
		ID:       dbUser.ID,
		Username: dbUser.Username,
	}
}
