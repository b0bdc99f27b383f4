// Package bulk implementa o ciclo de vida dos jobs do Bulk API 2.0 sobre um
// *salesforce.Client: criar o job, subir o CSV, marcar UploadComplete,
// acompanhar o estado até JobComplete/Failed/Aborted e baixar os resultados.
//
// Dois níveis de API:
//
//   - Bulk.Query / Bulk.Ingest trabalham com ids de job (útil para retomar jobs
//     criados por outro processo);
//   - QueryJob / IngestJob são handles que guardam a última JobInfo lida.
//
// Resultados vêm em CSV do Salesforce e podem ser devolvidos como registros
// (FormatDict), linhas (FormatReader) ou texto cru (FormatCSV).
package bulk
