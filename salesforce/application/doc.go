// Package application contém os casos de uso do cliente: decidir se uma chamada
// pode sair (throttle), reservar vaga de concorrência e esperar um job do
// Bulk API chegar a um estado terminal.
//
// Ele depende apenas do pacote domain e não conhece net/http.
package application
