// Package domain define contratos e tipos de domínio do cliente Salesforce:
// throttling de chamadas, estados de job do Bulk API 2.0 e histórico de jobs.
//
// Este pacote não depende de net/http nem de implementações concretas.
// O ciclo de vida dos jobs pertence ao Salesforce; aqui só existe o vocabulário.
package domain
